package handlers

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"kalam-backend/internal/models"
	"kalam-backend/internal/repo"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// for simple crud operations service layer is not required
type RoomHandler struct {
	repo repo.RoomRepoInterface
}

func NewRoomHandler(repo repo.RoomRepoInterface) *RoomHandler {
	return &RoomHandler{repo: repo}
}

func slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// function to create a room owned by the caller
func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	var dto struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&dto); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	slug := slugify(dto.Name)
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Room name is required",
		})
	}

	id, err := h.repo.CreateRoom(&models.Room{Slug: slug, AdminID: UserID(c)})
	if errors.Is(err, repo.ErrDuplicateSlug) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Room already exists with this name",
		})
	}
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("create room")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create room",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"roomId": id,
		"slug":   slug,
	})
}

// function to resolve a room slug
func (h *RoomHandler) GetRoomBySlug(c *fiber.Ctx) error {
	room, err := h.repo.GetRoomBySlug(c.Params("slug"))
	if errors.Is(err, repo.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Room not found",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("get room by slug")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get room",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"room": room,
	})
}

// function to list the caller's rooms
func (h *RoomHandler) GetMyRooms(c *fiber.Ctx) error {
	rooms, err := h.repo.GetRoomsByAdmin(UserID(c))
	if err != nil {
		log.Error().Err(err).Msg("get rooms")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get rooms",
		})
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"rooms": rooms,
	})
}
