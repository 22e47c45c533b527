package middleware

import (
	"errors"

	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

// UserID returns the caller set by Identity, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func IsAdmin(c *fiber.Ctx) bool {
	admin, _ := c.Locals(LocalIsAdmin).(bool)
	return admin
}

func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return WriteError(c, services.ErrUnauthorized)
		}
		return c.Next()
	}
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return WriteError(c, services.ErrUnauthorized)
		}
		if !IsAdmin(c) {
			return WriteError(c, services.ErrForbidden)
		}
		return c.Next()
	}
}

// rejectToken keeps ACCOUNT_DISABLED visible and folds every other failure
// into UNAUTHORIZED.
func rejectToken(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrAccountDisabled) {
		return WriteError(c, services.ErrAccountDisabled)
	}
	if se := services.AsError(err); se.Retryable() {
		return WriteError(c, se)
	}
	return WriteError(c, services.ErrUnauthorized)
}
