package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"kalam-backend/internal/engine"
	"kalam-backend/internal/shape"
)

type historyResponse struct {
	Messages []struct {
		Message string `json:"message"`
	} `json:"messages"`
}

// FetchHistory loads a room's stored edit events, oldest first, from
// GET {baseURL}/chats/:roomId.
func FetchHistory(baseURL, roomID string, timeout time.Duration) ([]string, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/chats/" + url.PathEscape(roomID)
	agent := fiber.Get(endpoint)
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("fetch history: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", code)
	}
	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	out := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, m.Message)
	}
	return out, nil
}

// LoadCanvas fetches history and replays it into a canvas state.
func LoadCanvas(baseURL, roomID string, timeout time.Duration) ([]shape.Shape, error) {
	msgs, err := FetchHistory(baseURL, roomID, timeout)
	if err != nil {
		return nil, err
	}
	return engine.Replay(msgs), nil
}
