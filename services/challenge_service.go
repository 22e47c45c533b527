package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ObjectStore persists uploaded files and returns the URL they are served from.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type StageInput struct {
	Title        string
	Description  string
	ProofType    models.ProofType
	QRCode       string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
}

type ChallengeInput struct {
	Title           string
	Description     string
	Category        string
	Difficulty      models.Difficulty
	XPReward        int64
	RequiredLevel   int
	StartDate       time.Time
	EndDate         time.Time
	IsActive        *bool
	MaxParticipants *int
	Stages          []StageInput
}

// ChallengePatch updates only the non-nil fields. Stages replaces the whole list.
type ChallengePatch struct {
	Title           *string
	Description     *string
	Category        *string
	Difficulty      *models.Difficulty
	XPReward        *int64
	RequiredLevel   *int
	StartDate       *time.Time
	EndDate         *time.Time
	IsActive        *bool
	MaxParticipants *int
	Stages          *[]StageInput

	// ClearMaxParticipants removes the participant cap.
	ClearMaxParticipants bool
}

type ListChallengesInput struct {
	Category   string
	Difficulty models.Difficulty
	Status     string
	Limit      int
	Offset     int
}

type ChallengePage struct {
	Challenges []models.Challenge `json:"challenges"`
	Total      int64              `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// ChallengeDetail is a challenge with participation counts and, for a signed-in
// caller who joined, their progress.
type ChallengeDetail struct {
	Challenge        models.Challenge `json:"challenge"`
	ParticipantCount int64            `json:"participant_count"`
	CompletedCount   int64            `json:"completed_count"`
	Stages           []StageView      `json:"stages,omitempty"`
	UserProgress     *ProgressView    `json:"user_progress,omitempty"`
}

var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type ChallengeService struct {
	Store         repository.Store
	Objects       ObjectStore
	Clock         clockwork.Clock
	Log           logrus.FieldLogger
	MaxUploadSize int64
}

func NewChallengeService(store repository.Store, objects ObjectStore, clock clockwork.Clock, log logrus.FieldLogger, maxUpload int64) *ChallengeService {
	return &ChallengeService{Store: store, Objects: objects, Clock: clock, Log: log, MaxUploadSize: maxUpload}
}

func buildStages(inputs []StageInput) ([]models.Stage, error) {
	stages := make([]models.Stage, len(inputs))
	for i, in := range inputs {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return nil, Validation("stage %d: title is required", i)
		}
		proof := in.ProofType
		if proof == "" {
			proof = models.ProofQRCode
		}
		if !proof.Valid() {
			return nil, Validation("stage %d: invalid proof type %q", i, in.ProofType)
		}
		if proof == models.ProofQRCode && strings.TrimSpace(in.QRCode) == "" {
			return nil, Validation("stage %d: qr code is required for QR_CODE stages", i)
		}
		stages[i] = models.Stage{
			ID:           uuid.NewString(),
			Order:        i,
			Title:        title,
			Description:  in.Description,
			ProofType:    proof,
			QRCode:       in.QRCode,
			Latitude:     in.Latitude,
			Longitude:    in.Longitude,
			RadiusMeters: in.RadiusMeters,
		}
	}
	return stages, nil
}

func validateChallenge(c *models.Challenge) error {
	switch {
	case strings.TrimSpace(c.Title) == "":
		return Validation("title is required")
	case !c.Difficulty.Valid():
		return Validation("invalid difficulty %q", c.Difficulty)
	case c.XPReward <= 0:
		return Validation("xp reward must be positive")
	case c.RequiredLevel < 1:
		return Validation("required level must be at least 1")
	case !c.EndDate.After(c.StartDate):
		return Validation("end date must be after start date")
	case c.MaxParticipants != nil && *c.MaxParticipants <= 0:
		return Validation("max participants must be positive")
	}
	return nil
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, in ChallengeInput) (*models.Challenge, error) {
	stages, err := buildStages(in.Stages)
	if err != nil {
		return nil, err
	}
	c := &models.Challenge{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Category:        strings.TrimSpace(in.Category),
		Difficulty:      in.Difficulty,
		XPReward:        in.XPReward,
		RequiredLevel:   in.RequiredLevel,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		IsActive:        in.IsActive == nil || *in.IsActive,
		MaxParticipants: in.MaxParticipants,
		Stages:          stages,
	}
	if c.RequiredLevel == 0 {
		c.RequiredLevel = 1
	}
	if err := validateChallenge(c); err != nil {
		return nil, err
	}
	if err := s.Store.CreateChallenge(ctx, c); err != nil {
		return nil, storeErr(err, nil, ErrDuplicate)
	}
	s.Log.WithFields(logrus.Fields{"challenge_id": c.ID, "stages": len(stages)}).Info("challenge created")
	return c, nil
}

// UpdateChallenge applies patch. Replacing stages is refused once anyone has
// joined, since stored stage progress refers to the old stage ids and order.
func (s *ChallengeService) UpdateChallenge(ctx context.Context, id string, patch ChallengePatch) (*models.Challenge, error) {
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		c, err := tx.LockChallenge(ctx, id)
		if err != nil {
			return storeErr(err, ErrChallengeNotFound, nil)
		}
		if patch.Title != nil {
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Category != nil {
			c.Category = strings.TrimSpace(*patch.Category)
		}
		if patch.Difficulty != nil {
			c.Difficulty = *patch.Difficulty
		}
		if patch.XPReward != nil {
			c.XPReward = *patch.XPReward
		}
		if patch.RequiredLevel != nil {
			c.RequiredLevel = *patch.RequiredLevel
		}
		if patch.StartDate != nil {
			c.StartDate = *patch.StartDate
		}
		if patch.EndDate != nil {
			c.EndDate = *patch.EndDate
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		switch {
		case patch.ClearMaxParticipants && patch.MaxParticipants != nil:
			return Validation("max participants cannot be both set and cleared")
		case patch.ClearMaxParticipants:
			c.MaxParticipants = nil
		case patch.MaxParticipants != nil:
			c.MaxParticipants = patch.MaxParticipants
		}
		if err := validateChallenge(c); err != nil {
			return err
		}

		if patch.Stages != nil {
			n, err := tx.CountProgress(ctx, id, nil)
			if err != nil {
				return Infra(err)
			}
			if n > 0 {
				return ErrStagesLocked
			}
			stages, err := buildStages(*patch.Stages)
			if err != nil {
				return err
			}
			if err := tx.ReplaceStages(ctx, id, stages); err != nil {
				return storeErr(err, nil, ErrDuplicate)
			}
		}
		return storeErr(tx.UpdateChallenge(ctx, c), ErrChallengeNotFound, ErrDuplicate)
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithField("challenge_id", id).Info("challenge updated")
	return s.getChallenge(ctx, id)
}

// DeleteChallenge removes a challenge, its stages and finished enrollments. It
// is refused while any enrollment is still ACTIVE.
func (s *ChallengeService) DeleteChallenge(ctx context.Context, id string) error {
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.LockChallenge(ctx, id); err != nil {
			return storeErr(err, ErrChallengeNotFound, nil)
		}
		active := models.ProgressActive
		n, err := tx.CountProgress(ctx, id, &active)
		if err != nil {
			return Infra(err)
		}
		if n > 0 {
			return ErrChallengeInProgress
		}
		return storeErr(tx.DeleteChallenge(ctx, id), ErrChallengeNotFound, nil)
	})
	if err != nil {
		return err
	}
	s.Log.WithField("challenge_id", id).Info("challenge deleted")
	return nil
}

func (s *ChallengeService) getChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	c, err := s.Store.GetChallenge(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrChallengeNotFound, nil)
	}
	return c, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, in ListChallengesInput) (*ChallengePage, error) {
	if in.Difficulty != "" && !in.Difficulty.Valid() {
		return nil, Validation("invalid difficulty %q", in.Difficulty)
	}
	status := strings.ToLower(in.Status)
	switch status {
	case "":
		status = "all"
	case "all", "active", "upcoming", "completed":
	default:
		return nil, Validation("invalid status %q", in.Status)
	}
	limit, offset := clampPage(in.Limit, in.Offset)

	challenges, total, err := s.Store.ListChallenges(ctx, repository.ChallengeFilter{
		Category:   strings.TrimSpace(in.Category),
		Difficulty: in.Difficulty,
		Status:     status,
		Now:        s.Clock.Now(),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, Infra(err)
	}
	if challenges == nil {
		challenges = []models.Challenge{}
	}
	return &ChallengePage{Challenges: challenges, Total: total, Limit: limit, Offset: offset}, nil
}

// GetChallengeByID returns the challenge with counts. When userID is set the
// stages carry that user's derived statuses.
func (s *ChallengeService) GetChallengeByID(ctx context.Context, challengeID, userID string) (*ChallengeDetail, error) {
	c, err := s.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	participants, err := s.Store.CountProgress(ctx, challengeID, nil)
	if err != nil {
		return nil, Infra(err)
	}
	done := models.ProgressCompleted
	completed, err := s.Store.CountProgress(ctx, challengeID, &done)
	if err != nil {
		return nil, Infra(err)
	}
	detail := &ChallengeDetail{Challenge: *c, ParticipantCount: participants, CompletedCount: completed}

	if userID != "" {
		progress, err := s.Store.GetChallengeProgress(ctx, userID, challengeID)
		switch {
		case err == nil:
			view := newProgressView(c.Stages, progress)
			detail.UserProgress = &view
			detail.Stages = view.Stages
		case isNotFound(err):
			detail.Stages, _ = buildStageViews(c.Stages, nil)
		default:
			return nil, Infra(err)
		}
	}
	return detail, nil
}

func (s *ChallengeService) checkImage(contentType string, size int64) (string, error) {
	ext, ok := imageTypes[strings.ToLower(contentType)]
	if !ok {
		return "", Validation("unsupported image type %q", contentType)
	}
	if size <= 0 {
		return "", Validation("file is empty")
	}
	if s.MaxUploadSize > 0 && size > s.MaxUploadSize {
		return "", Validation("file exceeds %d bytes", s.MaxUploadSize)
	}
	return ext, nil
}

func objectKey(prefix, filename, ext string) string {
	base := slug.Make(strings.TrimSuffix(filename, path.Ext(filename)))
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%s/%s-%s%s", prefix, base, uuid.NewString()[:8], ext)
}

// UploadChallengeImage stores a cover image and records its URL.
func (s *ChallengeService) UploadChallengeImage(ctx context.Context, challengeID, filename, contentType string, size int64, body io.Reader) (string, error) {
	ext, err := s.checkImage(contentType, size)
	if err != nil {
		return "", err
	}
	if _, err := s.getChallenge(ctx, challengeID); err != nil {
		return "", err
	}
	url, err := s.Objects.Put(ctx, objectKey("challenges/"+challengeID, filename, ext), body, size, contentType)
	if err != nil {
		return "", Infra(err)
	}
	if err := s.Store.SetChallengeImage(ctx, challengeID, url); err != nil {
		return "", storeErr(err, ErrChallengeNotFound, nil)
	}
	s.Log.WithFields(logrus.Fields{"challenge_id": challengeID, "url": url}).Info("challenge image uploaded")
	return url, nil
}

// UploadStageQR stores the printable QR image of a stage.
func (s *ChallengeService) UploadStageQR(ctx context.Context, challengeID, stageID, filename, contentType string, size int64, body io.Reader) (string, error) {
	ext, err := s.checkImage(contentType, size)
	if err != nil {
		return "", err
	}
	stage, err := s.Store.GetStage(ctx, stageID)
	if err != nil {
		return "", storeErr(err, ErrStageNotFound, nil)
	}
	if stage.ChallengeID != challengeID {
		return "", ErrStageNotFound
	}
	url, err := s.Objects.Put(ctx, objectKey("challenges/"+challengeID+"/qr", filename, ext), body, size, contentType)
	if err != nil {
		return "", Infra(err)
	}
	if err := s.Store.SetStageQRImage(ctx, stageID, url); err != nil {
		return "", storeErr(err, ErrStageNotFound, nil)
	}
	s.Log.WithFields(logrus.Fields{"challenge_id": challengeID, "stage_id": stageID}).Info("stage qr uploaded")
	return url, nil
}

// clampPage applies the default page size of 20 and the cap of 100.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
