package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"kalam-backend/internal/repo"
)

type ChatHandler struct {
	chatRepo repo.ChatRepoInterface
	limit    int
}

// NewChatHandler serves stored edit events. limit caps how many of the most
// recent events are returned.
func NewChatHandler(chatRepo repo.ChatRepoInterface, limit int) *ChatHandler {
	if limit <= 0 {
		limit = repo.DefaultHistoryLimit
	}
	return &ChatHandler{chatRepo: chatRepo, limit: limit}
}

// get the history of a room, oldest first
func (h *ChatHandler) GetRoomHistory(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	if roomID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid room ID",
		})
	}

	limit := h.limit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid limit",
			})
		}
		limit = min(n, h.limit)
	}

	chats, err := h.chatRepo.GetRoomHistory(c.UserContext(), roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("load room history")
		status := fiber.StatusInternalServerError
		if errors.Is(err, repo.ErrPersistence) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": "Failed to get chats",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messages": chats,
	})
}
