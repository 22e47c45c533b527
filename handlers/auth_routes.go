package handlers

import (
	"challenge-quest/middleware"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func SetupAuthRoutes(api fiber.Router, auth *services.AuthService, users *services.UserService) {
	api.Post("/auth/register", func(c *fiber.Ctx) error {
		var req registerRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		res, err := auth.Register(c.UserContext(), services.RegisterInput{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	api.Post("/auth/login", func(c *fiber.Ctx) error {
		var req loginRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		res, err := auth.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(res)
	})

	api.Get("/auth/profile", middleware.RequireAuth(), func(c *fiber.Ctx) error {
		profile, err := users.Profile(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(profile)
	})
}
