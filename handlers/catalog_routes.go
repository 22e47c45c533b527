package handlers

import (
	"challenge-quest/middleware"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color" validate:"omitempty,max=32"`
	IsActive    *bool  `json:"is_active"`
}

type categoryPatchRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color" validate:"omitempty,max=32"`
	IsActive    *bool   `json:"is_active"`
}

type levelRequest struct {
	Number   int    `json:"number" validate:"required,gte=1"`
	Name     string `json:"name" validate:"required,max=100"`
	MinXP    int64  `json:"min_xp" validate:"gte=0"`
	MaxXP    *int64 `json:"max_xp" validate:"omitempty,gte=0"`
	IsActive *bool  `json:"is_active"`
}

type levelPatchRequest struct {
	Number   *int    `json:"number" validate:"omitempty,gte=1"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
	MinXP    *int64  `json:"min_xp" validate:"omitempty,gte=0"`
	MaxXP    *int64  `json:"max_xp" validate:"omitempty,gte=0"`
	ClearMax bool    `json:"clear_max"`
	IsActive *bool   `json:"is_active"`
}

// activeOnly is true unless ?all=true is passed by an admin.
func activeOnly(c *fiber.Ctx) bool {
	return !(middleware.IsAdmin(c) && c.QueryBool("all"))
}

func SetupCategoryRoutes(api fiber.Router, categories *services.CategoryService) {
	admin := middleware.RequireAdmin()

	api.Get("/categories", func(c *fiber.Ctx) error {
		list, err := categories.ListCategories(c.UserContext(), activeOnly(c))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"categories": list})
	})

	api.Get("/categories/:id", func(c *fiber.Ctx) error {
		category, err := categories.GetCategory(c.UserContext(), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(category)
	})

	api.Post("/categories", admin, func(c *fiber.Ctx) error {
		var req categoryRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		category, err := categories.CreateCategory(c.UserContext(), services.CategoryInput{
			Name:        req.Name,
			Description: req.Description,
			Icon:        req.Icon,
			Color:       req.Color,
			IsActive:    req.IsActive,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(category)
	})

	api.Put("/categories/:id", admin, func(c *fiber.Ctx) error {
		var req categoryPatchRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		category, err := categories.UpdateCategory(c.UserContext(), c.Params("id"), services.CategoryPatch{
			Name:        req.Name,
			Description: req.Description,
			Icon:        req.Icon,
			Color:       req.Color,
			IsActive:    req.IsActive,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(category)
	})

	api.Patch("/categories/:id/toggle-status", admin, func(c *fiber.Ctx) error {
		category, err := categories.ToggleCategoryStatus(c.UserContext(), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(category)
	})

	api.Delete("/categories/:id", admin, func(c *fiber.Ctx) error {
		if err := categories.DeleteCategory(c.UserContext(), c.Params("id")); err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"message": "category deleted"})
	})
}

func SetupLevelRoutes(api fiber.Router, levels *services.LevelService) {
	admin := middleware.RequireAdmin()

	api.Get("/levels", func(c *fiber.Ctx) error {
		list, err := levels.ListLevels(c.UserContext(), activeOnly(c))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"levels": list})
	})

	api.Get("/levels/:id", func(c *fiber.Ctx) error {
		level, err := levels.GetLevel(c.UserContext(), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(level)
	})

	api.Post("/levels/update-all-users", admin, func(c *fiber.Ctx) error {
		res, err := levels.RecalculateUserLevels(c.UserContext())
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(res)
	})

	api.Post("/levels", admin, func(c *fiber.Ctx) error {
		var req levelRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		level, err := levels.CreateLevel(c.UserContext(), services.LevelInput{
			Number:   req.Number,
			Name:     req.Name,
			MinXP:    req.MinXP,
			MaxXP:    req.MaxXP,
			IsActive: req.IsActive,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(level)
	})

	api.Put("/levels/:id", admin, func(c *fiber.Ctx) error {
		var req levelPatchRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		level, err := levels.UpdateLevel(c.UserContext(), c.Params("id"), services.LevelPatch{
			Number:   req.Number,
			Name:     req.Name,
			MinXP:    req.MinXP,
			MaxXP:    req.MaxXP,
			ClearMax: req.ClearMax,
			IsActive: req.IsActive,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(level)
	})

	api.Delete("/levels/:id", admin, func(c *fiber.Ctx) error {
		if err := levels.DeleteLevel(c.UserContext(), c.Params("id")); err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"message": "level deleted"})
	})
}
