package handlers

import (
	"context"

	"challenge-quest/middleware"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Pinger reports database reachability for /health/db.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth        *services.AuthService
	Users       *services.UserService
	Progression *services.ProgressionService
	Challenges  *services.ChallengeService
	Categories  *services.CategoryService
	Levels      *services.LevelService
	Leaderboard *services.LeaderboardService
	DB          Pinger
	Log         logrus.FieldLogger

	GatewayToken string
}

// Setup mounts health and metrics at the root and the API under /api.
func Setup(app *fiber.App, d Deps) {
	app.Use(middleware.RequestLog(d.Log), middleware.Metrics())
	SetupHealthRoutes(app, d.DB)

	api := app.Group("/api", middleware.Identity(d.Auth, d.GatewayToken, d.Log))
	SetupAuthRoutes(api, d.Auth, d.Users)
	SetupProgressionRoutes(api, d.Progression)
	SetupChallengeRoutes(api, d.Challenges)
	SetupLeaderboardRoutes(api, d.Leaderboard)
	SetupCategoryRoutes(api, d.Categories)
	SetupLevelRoutes(api, d.Levels)
	SetupUserRoutes(api, d.Users)
}
