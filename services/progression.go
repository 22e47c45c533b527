package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"challenge-quest/metrics"
	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// StageView is a stage as one user sees it.
type StageView struct {
	models.Stage
	Status      models.StageStatus `json:"status"`
	SubmittedAt *time.Time         `json:"submitted_at,omitempty"`
}

// ProgressView is an enrollment with the derived status of every stage.
type ProgressView struct {
	Progress        models.ChallengeProgress `json:"progress"`
	Stages          []StageView              `json:"stages"`
	CompletedStages int                      `json:"completed_stages"`
	TotalStages     int                      `json:"total_stages"`
}

// UserChallenge is a ProgressView together with its challenge.
type UserChallenge struct {
	Challenge models.Challenge `json:"challenge"`
	ProgressView
}

type SubmitInput struct {
	UserID         string
	StageID        string
	SubmissionType models.ProofType
	Content        string
}

type SubmitResult struct {
	StageProgress      models.StageProgress     `json:"stage_progress"`
	ChallengeProgress  models.ChallengeProgress `json:"challenge_progress"`
	ChallengeCompleted bool                     `json:"challenge_completed"`
	NextStageID        string                   `json:"next_stage_id,omitempty"`
	XPAwarded          int64                    `json:"xp_awarded"`
	TotalXP            int64                    `json:"total_xp"`
	Level              int                      `json:"level"`
	LeveledUp          bool                     `json:"leveled_up"`
}

// ProgressionService runs the join / submit state machine. Every mutating call
// is a single store transaction.
type ProgressionService struct {
	Store     repository.Store
	Clock     clockwork.Clock
	Log       logrus.FieldLogger
	LevelSpan int64
}

func NewProgressionService(store repository.Store, clock clockwork.Clock, log logrus.FieldLogger, levelSpan int64) *ProgressionService {
	return &ProgressionService{Store: store, Clock: clock, Log: log, LevelSpan: levelSpan}
}

// deriveStageStatuses returns one status per stage (stages sorted by order).
// A stage is actionable only while every earlier stage is COMPLETED; SKIPPED
// does not unlock anything.
func deriveStageStatuses(stages []models.Stage, progress *models.ChallengeProgress) []models.StageStatus {
	out := make([]models.StageStatus, len(stages))
	priorDone := true
	for i, stage := range stages {
		switch {
		case progress == nil:
			out[i] = models.StageLocked
		case stageRowTerminal(progress.StageFor(stage.ID)):
			out[i] = progress.StageFor(stage.ID).Status
		case priorDone:
			out[i] = models.StagePending
		default:
			out[i] = models.StageLocked
		}
		priorDone = priorDone && out[i] == models.StageCompleted
	}
	return out
}

func stageRowTerminal(row *models.StageProgress) bool {
	return row != nil && (row.Status == models.StageCompleted || row.Status == models.StageSkipped)
}

func stageIndex(stages []models.Stage, stageID string) int {
	for i := range stages {
		if stages[i].ID == stageID {
			return i
		}
	}
	return -1
}

func newProgressView(stages []models.Stage, progress *models.ChallengeProgress) ProgressView {
	views, completed := buildStageViews(stages, progress)
	return ProgressView{
		Progress:        *progress,
		Stages:          views,
		CompletedStages: completed,
		TotalStages:     len(views),
	}
}

func buildStageViews(stages []models.Stage, progress *models.ChallengeProgress) ([]StageView, int) {
	statuses := deriveStageStatuses(stages, progress)
	views := make([]StageView, len(stages))
	completed := 0
	for i, stage := range stages {
		views[i] = StageView{Stage: stage, Status: statuses[i]}
		if progress != nil {
			if row := progress.StageFor(stage.ID); row != nil {
				views[i].SubmittedAt = row.SubmittedAt
			}
		}
		if statuses[i] == models.StageCompleted {
			completed++
		}
	}
	return views, completed
}

// JoinChallenge enrolls the user and opens the first stage. The challenge row is
// locked so participant-cap checks serialise.
func (s *ProgressionService) JoinChallenge(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error) {
	now := s.Clock.Now()
	var joined *models.ChallengeProgress

	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return storeErr(err, ErrUserNotFound, nil)
		}
		if !user.IsActive {
			return ErrAccountDisabled
		}
		challenge, err := tx.LockChallenge(ctx, challengeID)
		if err != nil {
			return storeErr(err, ErrChallengeNotFound, nil)
		}

		if _, err := tx.GetChallengeProgress(ctx, userID, challengeID); err == nil {
			return ErrAlreadyJoined
		} else if !errors.Is(err, repository.ErrNotFound) {
			return Infra(err)
		}

		table, err := loadLevelTable(ctx, tx, s.LevelSpan)
		if err != nil {
			return err
		}
		if table.Resolve(user.XP) < challenge.RequiredLevel {
			return ErrLevelTooLow
		}
		if !challenge.IsActive || !challenge.InWindow(now) {
			return ErrChallengeNotActive
		}
		if challenge.MaxParticipants != nil {
			n, err := tx.CountProgress(ctx, challengeID, nil)
			if err != nil {
				return Infra(err)
			}
			if n >= int64(*challenge.MaxParticipants) {
				return ErrChallengeFull
			}
		}
		if len(challenge.Stages) == 0 {
			return ErrNoStages
		}

		progress := &models.ChallengeProgress{
			ID:          uuid.NewString(),
			UserID:      userID,
			ChallengeID: challengeID,
			Status:      models.ProgressActive,
			JoinedAt:    now,
		}
		if err := tx.CreateChallengeProgress(ctx, progress); err != nil {
			return storeErr(err, nil, ErrAlreadyJoined)
		}
		first := models.StageProgress{
			ID:                  uuid.NewString(),
			ChallengeProgressID: progress.ID,
			StageID:             challenge.Stages[0].ID,
			Status:              models.StagePending,
		}
		if err := tx.CreateStageProgress(ctx, &first); err != nil {
			return storeErr(err, nil, ErrAlreadyJoined)
		}
		progress.StageProgress = []models.StageProgress{first}

		joined = progress
		return addEvent(ctx, tx, models.EventChallengeJoined, challengeID, ChallengeJoinedPayload{
			UserID:      userID,
			ChallengeID: challengeID,
			ProgressID:  progress.ID,
			JoinedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ChallengeJoins.Inc()
	s.Log.WithFields(logrus.Fields{"user_id": userID, "challenge_id": challengeID}).Info("challenge joined")
	return joined, nil
}

// GetStageStatus derives the status of one stage for the user. It never writes.
func (s *ProgressionService) GetStageStatus(ctx context.Context, userID, stageID string) (models.StageStatus, error) {
	stage, err := s.Store.GetStage(ctx, stageID)
	if err != nil {
		return "", storeErr(err, ErrStageNotFound, nil)
	}
	challenge, err := s.Store.GetChallenge(ctx, stage.ChallengeID)
	if err != nil {
		return "", storeErr(err, ErrChallengeNotFound, nil)
	}
	progress, err := s.Store.GetChallengeProgress(ctx, userID, challenge.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", Infra(err)
	}
	if err != nil {
		progress = nil
	}
	idx := stageIndex(challenge.Stages, stageID)
	if idx < 0 {
		return "", ErrStageNotFound
	}
	return deriveStageStatuses(challenge.Stages, progress)[idx], nil
}

func verifyProof(stage *models.Stage, in SubmitInput) error {
	switch stage.ProofType {
	case models.ProofGPS:
		// coordinates are accepted as submitted; no distance check
		if strings.TrimSpace(in.Content) == "" {
			return ErrInvalidProof
		}
	default:
		if in.SubmissionType != models.ProofQRCode || stage.QRCode == "" || in.Content != stage.QRCode {
			return ErrInvalidProof
		}
	}
	return nil
}

// SubmitStage completes a PENDING stage. The last stage completes the challenge
// and awards its XP exactly once. The enrollment row is locked and the stage
// row changes only if it is still PENDING, so a concurrent duplicate submit
// fails with ErrStageLocked.
func (s *ProgressionService) SubmitStage(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	now := s.Clock.Now()
	res := &SubmitResult{}
	var challengeID string
	var fromLevel int

	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		stage, err := tx.GetStage(ctx, in.StageID)
		if err != nil {
			return storeErr(err, ErrStageNotFound, nil)
		}
		challenge, err := tx.GetChallenge(ctx, stage.ChallengeID)
		if err != nil {
			return storeErr(err, ErrChallengeNotFound, nil)
		}
		challengeID = challenge.ID
		progress, err := tx.LockChallengeProgress(ctx, in.UserID, challenge.ID)
		if err != nil {
			return storeErr(err, ErrNotJoined, nil)
		}

		idx := stageIndex(challenge.Stages, stage.ID)
		if idx < 0 {
			return ErrStageNotFound
		}
		if deriveStageStatuses(challenge.Stages, progress)[idx] != models.StagePending {
			return ErrStageLocked
		}
		if now.After(challenge.EndDate) {
			return ErrChallengeWindowClosed
		}
		if err := verifyProof(stage, in); err != nil {
			return err
		}

		if row := progress.StageFor(stage.ID); row != nil {
			ok, err := tx.TransitionStage(ctx, repository.StageTransition{
				StageProgressID: row.ID,
				From:            models.StagePending,
				To:              models.StageCompleted,
				At:              now,
				SubmissionType:  in.SubmissionType,
				Content:         in.Content,
			})
			if err != nil {
				return Infra(err)
			}
			if !ok {
				return ErrStageLocked
			}
		} else {
			typ := in.SubmissionType
			created := models.StageProgress{
				ID:                  uuid.NewString(),
				ChallengeProgressID: progress.ID,
				StageID:             stage.ID,
				Status:              models.StageCompleted,
				SubmittedAt:         &now,
				SubmissionType:      &typ,
				Content:             in.Content,
			}
			if err := tx.CreateStageProgress(ctx, &created); err != nil {
				return storeErr(err, nil, ErrStageLocked)
			}
		}
		if err := addEvent(ctx, tx, models.EventStageCompleted, challenge.ID, StageCompletedPayload{
			UserID:      in.UserID,
			ChallengeID: challenge.ID,
			StageID:     stage.ID,
			StageOrder:  stage.Order,
			CompletedAt: now,
		}); err != nil {
			return err
		}

		if idx+1 < len(challenge.Stages) {
			next := challenge.Stages[idx+1]
			res.NextStageID = next.ID
			if progress.StageFor(next.ID) == nil {
				err := tx.CreateStageProgress(ctx, &models.StageProgress{
					ID:                  uuid.NewString(),
					ChallengeProgressID: progress.ID,
					StageID:             next.ID,
					Status:              models.StagePending,
				})
				if err != nil {
					return storeErr(err, nil, ErrStageLocked)
				}
			}
			user, err := tx.GetUser(ctx, in.UserID)
			if err != nil {
				return storeErr(err, ErrUserNotFound, nil)
			}
			res.TotalXP, res.Level = user.XP, user.Level
		} else {
			if err := s.completeChallenge(ctx, tx, challenge, progress.ID, in.UserID, now, res, &fromLevel); err != nil {
				return err
			}
		}

		updated, err := tx.GetChallengeProgress(ctx, in.UserID, challenge.ID)
		if err != nil {
			return Infra(err)
		}
		res.ChallengeProgress = *updated
		if row := updated.StageFor(stage.ID); row != nil {
			res.StageProgress = *row
		}
		return nil
	})
	if err != nil {
		if se := AsError(err); se.Kind != KindInfrastructure {
			metrics.StageSubmissions.WithLabelValues(strings.ToLower(se.Code)).Inc()
		}
		return nil, err
	}

	metrics.StageSubmissions.WithLabelValues("accepted").Inc()
	entry := s.Log.WithFields(logrus.Fields{"user_id": in.UserID, "stage_id": in.StageID, "challenge_id": challengeID})
	entry.Info("stage completed")
	if res.ChallengeCompleted {
		metrics.ChallengeCompletions.Inc()
		metrics.XPAwarded.Add(float64(res.XPAwarded))
		entry.WithFields(logrus.Fields{"xp_awarded": res.XPAwarded, "total_xp": res.TotalXP}).Info("challenge completed")
	}
	if res.LeveledUp {
		metrics.LevelUps.Inc()
		entry.WithFields(logrus.Fields{"from_level": fromLevel, "to_level": res.Level}).Info("level up")
	}
	return res, nil
}

// completeChallenge closes the enrollment and awards XP. It runs inside the
// submit transaction after the last stage transitioned.
func (s *ProgressionService) completeChallenge(ctx context.Context, tx repository.Store, challenge *models.Challenge, progressID, userID string, now time.Time, res *SubmitResult, fromLevel *int) error {
	ok, err := tx.CompleteChallengeProgress(ctx, progressID, now)
	if err != nil {
		return Infra(err)
	}
	if !ok {
		return ErrStageLocked
	}

	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return storeErr(err, ErrUserNotFound, nil)
	}
	table, err := loadLevelTable(ctx, tx, s.LevelSpan)
	if err != nil {
		return err
	}
	before := table.Resolve(user.XP)
	xp := user.XP + challenge.XPReward
	level := table.Resolve(xp)

	var levelUpAt *time.Time
	if level > before {
		levelUpAt = &now
	}
	if err := tx.UpdateUserXP(ctx, userID, xp, level, levelUpAt); err != nil {
		return Infra(err)
	}

	res.ChallengeCompleted = true
	res.XPAwarded = challenge.XPReward
	res.TotalXP = xp
	res.Level = level
	res.LeveledUp = level > before
	*fromLevel = before

	if err := addEvent(ctx, tx, models.EventChallengeCompleted, challenge.ID, ChallengeCompletedPayload{
		UserID:      userID,
		ChallengeID: challenge.ID,
		XPAwarded:   challenge.XPReward,
		TotalXP:     xp,
		CompletedAt: now,
	}); err != nil {
		return err
	}
	if res.LeveledUp {
		return addEvent(ctx, tx, models.EventUserLevelUp, userID, LevelUpPayload{
			UserID:    userID,
			FromLevel: before,
			ToLevel:   level,
			TotalXP:   xp,
		})
	}
	return nil
}

// ListUserChallenges returns the user's enrollments, newest first, optionally
// filtered by status.
func (s *ProgressionService) ListUserChallenges(ctx context.Context, userID string, status *models.ProgressStatus) ([]UserChallenge, error) {
	if status != nil && !status.Valid() {
		return nil, Validation("invalid status %q", *status)
	}
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, storeErr(err, ErrUserNotFound, nil)
	}
	rows, err := s.Store.ListChallengeProgress(ctx, userID, status)
	if err != nil {
		return nil, Infra(err)
	}

	out := make([]UserChallenge, 0, len(rows))
	for i := range rows {
		challenge, err := s.Store.GetChallenge(ctx, rows[i].ChallengeID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, Infra(err)
		}
		view := newProgressView(challenge.Stages, &rows[i])
		c := *challenge
		c.Stages = nil
		out = append(out, UserChallenge{Challenge: c, ProgressView: view})
	}
	return out, nil
}
