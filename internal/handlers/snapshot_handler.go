package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"kalam-backend/internal/engine"
	"kalam-backend/internal/libraries"
	"kalam-backend/internal/render"
	"kalam-backend/internal/repo"
)

// SnapshotHandler replays a room's history and renders it to PNG.
type SnapshotHandler struct {
	chatRepo repo.ChatRepoInterface
	store    libraries.SnapshotStore
	limit    int
	width    int
	height   int
}

func NewSnapshotHandler(chatRepo repo.ChatRepoInterface, store libraries.SnapshotStore, limit int) *SnapshotHandler {
	if limit <= 0 {
		limit = repo.DefaultHistoryLimit
	}
	return &SnapshotHandler{
		chatRepo: chatRepo,
		store:    store,
		limit:    limit,
		width:    render.DefaultWidth,
		height:   render.DefaultHeight,
	}
}

func (h *SnapshotHandler) renderRoom(c *fiber.Ctx, roomID string) ([]byte, error) {
	chats, err := h.chatRepo.GetRoomHistory(c.UserContext(), roomID, h.limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	messages := make([]string, len(chats))
	for i, chat := range chats {
		messages[i] = chat.Message
	}
	return render.PNG(h.width, h.height, engine.Replay(messages))
}

// function to render the current canvas of a room
func (h *SnapshotHandler) GetSnapshot(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	png, err := h.renderRoom(c, roomID)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("render snapshot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render snapshot",
		})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Status(fiber.StatusOK).Send(png)
}

// function to render a room and store the image
func (h *SnapshotHandler) SaveSnapshot(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Snapshot storage not configured",
		})
	}
	roomID := c.Params("roomId")
	if strings.Contains(roomID, "..") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid room ID",
		})
	}
	png, err := h.renderRoom(c, roomID)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("render snapshot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render snapshot",
		})
	}

	name := fmt.Sprintf("rooms/%s/%s-%s.png", roomID, time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	location, err := h.store.SaveSnapshot(c.UserContext(), name, png)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("save snapshot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save snapshot",
		})
	}
	log.Info().Str("room", roomID).Str("location", location).Msg("snapshot saved")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"location": location,
	})
}
