package v1

import (
	"kalam-backend/internal/handlers"
	"kalam-backend/internal/libraries"

	"github.com/gofiber/fiber/v2"
)

// registerChat serves stored edit events for late joiners.
func registerChat(r fiber.Router, deps Deps) {
	chatHandler := handlers.NewChatHandler(deps.Chats, deps.HistoryLimit)
	r.Get("/chats/:roomId", chatHandler.GetRoomHistory)
}

func registerSnapshot(r fiber.Router, deps Deps) {
	snapshotHandler := handlers.NewSnapshotHandler(deps.Chats, deps.Snapshots, deps.HistoryLimit)
	r.Get("/rooms/:roomId/snapshot.png", snapshotHandler.GetSnapshot)
	r.Post("/rooms/:roomId/snapshot", snapshotHandler.SaveSnapshot)
}

// registerWebSocket mounts the relay. The token is checked before the upgrade.
func registerWebSocket(r fiber.Router, deps Deps) {
	r.Get("/ws", libraries.UpgradeMiddleware(deps.Auth), libraries.WebSocketHandler(deps.Relay))
}
