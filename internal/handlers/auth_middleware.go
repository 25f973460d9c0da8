package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"kalam-backend/internal/libraries"
)

const localsUserID = "userId"

// RequireAuth checks the bearer token and stores the caller's user id.
func RequireAuth(authn libraries.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token = header
		}
		userID, err := authn.Authenticate(strings.TrimSpace(token))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		c.Locals(localsUserID, userID)
		return c.Next()
	}
}

// UserID returns the id stored by RequireAuth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsUserID).(string)
	return id
}
