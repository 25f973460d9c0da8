package v1

import (
	"github.com/gofiber/fiber/v2"

	"kalam-backend/internal/libraries"
	"kalam-backend/internal/repo"
)

// Deps are the shared services the v1 routes are built from.
type Deps struct {
	Auth         libraries.Authenticator
	Relay        *libraries.Relay
	Rooms        repo.RoomRepoInterface
	Chats        repo.ChatRepoInterface
	Snapshots    libraries.SnapshotStore
	HistoryLimit int
}

func RegisterRoutes(r fiber.Router, deps Deps) {
	registerHealth(r)
	registerRoom(r, deps)
	registerChat(r, deps)
	registerSnapshot(r, deps)
	registerWebSocket(r, deps)
}
