package handlers

import (
	"challenge-quest/middleware"
	"challenge-quest/models"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

type joinRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
}

type submitStageRequest struct {
	StageID        string           `json:"stage_id" validate:"required"`
	SubmissionType models.ProofType `json:"submission_type" validate:"required,oneof=QR_CODE GPS"`
	Content        string           `json:"content" validate:"required"`
}

// SetupProgressionRoutes mounts the join/submit state machine and the
// player's own challenge views. Every route here needs a caller. The guard is
// attached per route: a Group middleware would also catch the public routes
// sharing the /api prefix.
func SetupProgressionRoutes(api fiber.Router, progression *services.ProgressionService) {
	authed := middleware.RequireAuth()

	api.Post("/challenges/join", authed, func(c *fiber.Ctx) error {
		var req joinRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		progress, err := progression.JoinChallenge(c.UserContext(), middleware.UserID(c), req.ChallengeID)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":  "joined challenge",
			"progress": progress,
		})
	})

	api.Post("/challenges/submit-stage", authed, func(c *fiber.Ctx) error {
		var req submitStageRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		res, err := progression.SubmitStage(c.UserContext(), services.SubmitInput{
			UserID:         middleware.UserID(c),
			StageID:        req.StageID,
			SubmissionType: req.SubmissionType,
			Content:        req.Content,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(res)
	})

	api.Get("/challenges/user/my-challenges", authed, func(c *fiber.Ctx) error {
		var status *models.ProgressStatus
		if raw := c.Query("status"); raw != "" {
			s := models.ProgressStatus(raw)
			status = &s
		}
		list, err := progression.ListUserChallenges(c.UserContext(), middleware.UserID(c), status)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"challenges": list})
	})

	api.Get("/stages/:id/status", authed, func(c *fiber.Ctx) error {
		status, err := progression.GetStageStatus(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"stage_id": c.Params("id"), "status": status})
	})
}
