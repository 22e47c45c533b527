package middleware

import (
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

var kindStatus = map[services.Kind]int{
	services.KindValidation:     fiber.StatusBadRequest,
	services.KindUnauthorized:   fiber.StatusUnauthorized,
	services.KindForbidden:      fiber.StatusForbidden,
	services.KindNotFound:       fiber.StatusNotFound,
	services.KindConflict:       fiber.StatusConflict,
	services.KindState:          fiber.StatusBadRequest,
	services.KindInfrastructure: fiber.StatusServiceUnavailable,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind services.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// WriteError renders err as {"error", "code", "kind"} with the matching status.
func WriteError(c *fiber.Ctx, err error) error {
	e := services.AsError(err)
	return c.Status(StatusFor(e.Kind)).JSON(fiber.Map{
		"error": e.Message,
		"code":  e.Code,
		"kind":  string(e.Kind),
	})
}
