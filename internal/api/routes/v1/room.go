package v1

import (
	"kalam-backend/internal/handlers"

	"github.com/gofiber/fiber/v2"
)

func registerRoom(r fiber.Router, deps Deps) {
	// Initialize handler
	roomHandler := handlers.NewRoomHandler(deps.Rooms)
	requireAuth := handlers.RequireAuth(deps.Auth)

	// Register routes
	r.Get("/room/:slug", roomHandler.GetRoomBySlug)
	r.Post("/room", requireAuth, roomHandler.CreateRoom)
	r.Get("/room", requireAuth, roomHandler.GetMyRooms)
}
