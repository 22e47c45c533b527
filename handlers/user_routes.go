package handlers

import (
	"challenge-quest/middleware"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(api fiber.Router, users *services.UserService) {
	admin := middleware.RequireAdmin()

	api.Get("/users", admin, func(c *fiber.Ctx) error {
		limit, offset, err := pageParams(c)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		page, err := users.ListUsers(c.UserContext(), limit, offset)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(page)
	})

	api.Get("/users/:id", admin, func(c *fiber.Ctx) error {
		user, err := users.GetUser(c.UserContext(), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(user)
	})

	api.Patch("/users/:id/toggle-status", admin, func(c *fiber.Ctx) error {
		user, err := users.ToggleUserStatus(c.UserContext(), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(user)
	})
}
