package handlers

import (
	"challenge-quest/middleware"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(api fiber.Router, board *services.LeaderboardService) {
	api.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, offset, err := pageParams(c)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		entries, err := board.GetLeaderboard(c.UserContext(), limit, offset)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"leaderboard": entries})
	})

	api.Get("/leaderboard/stats", func(c *fiber.Ctx) error {
		stats, err := board.GetStats(c.UserContext())
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(stats)
	})

	api.Get("/leaderboard/user-rank", middleware.RequireAuth(), func(c *fiber.Ctx) error {
		rank, err := board.GetUserRank(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"user_id": middleware.UserID(c), "rank": rank})
	})
}
