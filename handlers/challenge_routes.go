package handlers

import (
	"time"

	"challenge-quest/middleware"
	"challenge-quest/models"
	"challenge-quest/services"

	"github.com/gofiber/fiber/v2"
)

type stageRequest struct {
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description"`
	ProofType    models.ProofType `json:"proof_type" validate:"omitempty,oneof=QR_CODE GPS"`
	QRCode       string           `json:"qr_code"`
	Latitude     *float64         `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64         `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	RadiusMeters *float64         `json:"radius_meters" validate:"omitempty,gt=0"`
}

func (r stageRequest) input() services.StageInput {
	return services.StageInput{
		Title:        r.Title,
		Description:  r.Description,
		ProofType:    r.ProofType,
		QRCode:       r.QRCode,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		RadiusMeters: r.RadiusMeters,
	}
}

func stageInputs(reqs []stageRequest) []services.StageInput {
	out := make([]services.StageInput, len(reqs))
	for i, r := range reqs {
		out[i] = r.input()
	}
	return out
}

type createChallengeRequest struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Difficulty      models.Difficulty `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
	XPReward        int64             `json:"xp_reward" validate:"gte=0"`
	RequiredLevel   int               `json:"required_level" validate:"omitempty,gte=1"`
	StartDate       time.Time         `json:"start_date" validate:"required"`
	EndDate         time.Time         `json:"end_date" validate:"required"`
	IsActive        *bool             `json:"is_active"`
	MaxParticipants *int              `json:"max_participants" validate:"omitempty,gte=1"`
	Stages          []stageRequest    `json:"stages" validate:"dive"`
}

type updateChallengeRequest struct {
	Title           *string            `json:"title" validate:"omitempty,max=200"`
	Description     *string            `json:"description"`
	Category        *string            `json:"category"`
	Difficulty      *models.Difficulty `json:"difficulty" validate:"omitempty,oneof=EASY MEDIUM HARD"`
	XPReward        *int64             `json:"xp_reward" validate:"omitempty,gte=0"`
	RequiredLevel   *int               `json:"required_level" validate:"omitempty,gte=1"`
	StartDate       *time.Time         `json:"start_date"`
	EndDate         *time.Time         `json:"end_date"`
	IsActive        *bool              `json:"is_active"`
	MaxParticipants *int               `json:"max_participants" validate:"omitempty,gte=1"`
	Unlimited       bool               `json:"unlimited_participants"`
	Stages          *[]stageRequest    `json:"stages" validate:"omitempty,dive"`
}

func SetupChallengeRoutes(api fiber.Router, challenges *services.ChallengeService) {
	admin := middleware.RequireAdmin()

	api.Get("/challenges", func(c *fiber.Ctx) error {
		limit, offset, err := pageParams(c)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		page, err := challenges.ListChallenges(c.UserContext(), services.ListChallengesInput{
			Category:   c.Query("category"),
			Difficulty: models.Difficulty(c.Query("difficulty")),
			Status:     c.Query("status"),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(page)
	})

	// Anonymous callers get the challenge without personal progress.
	api.Get("/challenges/:id", func(c *fiber.Ctx) error {
		detail, err := challenges.GetChallengeByID(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(detail)
	})

	api.Post("/challenges", admin, func(c *fiber.Ctx) error {
		var req createChallengeRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		challenge, err := challenges.CreateChallenge(c.UserContext(), services.ChallengeInput{
			Title:           req.Title,
			Description:     req.Description,
			Category:        req.Category,
			Difficulty:      req.Difficulty,
			XPReward:        req.XPReward,
			RequiredLevel:   req.RequiredLevel,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			IsActive:        req.IsActive,
			MaxParticipants: req.MaxParticipants,
			Stages:          stageInputs(req.Stages),
		})
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(challenge)
	})

	api.Put("/challenges/:id", admin, func(c *fiber.Ctx) error {
		var req updateChallengeRequest
		if err := bind(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
		patch := services.ChallengePatch{
			Title:           req.Title,
			Description:     req.Description,
			Category:        req.Category,
			Difficulty:      req.Difficulty,
			XPReward:        req.XPReward,
			RequiredLevel:   req.RequiredLevel,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			IsActive:        req.IsActive,
			MaxParticipants: req.MaxParticipants,

			ClearMaxParticipants: req.Unlimited,
		}
		if req.Stages != nil {
			stages := stageInputs(*req.Stages)
			patch.Stages = &stages
		}
		challenge, err := challenges.UpdateChallenge(c.UserContext(), c.Params("id"), patch)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(challenge)
	})

	api.Delete("/challenges/:id", admin, func(c *fiber.Ctx) error {
		if err := challenges.DeleteChallenge(c.UserContext(), c.Params("id")); err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"message": "challenge deleted"})
	})

	api.Post("/challenges/:id/image", admin, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return middleware.WriteError(c, services.Validation("image file is required"))
		}
		f, err := fh.Open()
		if err != nil {
			return middleware.WriteError(c, services.Infra(err))
		}
		defer f.Close()

		url, err := challenges.UploadChallengeImage(c.UserContext(), c.Params("id"), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"image_url": url})
	})

	api.Post("/challenges/:id/stages/:stageId/qr", admin, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("qr")
		if err != nil {
			return middleware.WriteError(c, services.Validation("qr file is required"))
		}
		f, err := fh.Open()
		if err != nil {
			return middleware.WriteError(c, services.Infra(err))
		}
		defer f.Close()

		url, err := challenges.UploadStageQR(c.UserContext(), c.Params("id"), c.Params("stageId"), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.JSON(fiber.Map{"qr_image_url": url})
	})
}
