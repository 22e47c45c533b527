// Package repository owns persistence. Services depend on the Store interface;
// GormStore backs it with postgres and MemoryStore keeps everything in process.
package repository

import (
	"context"
	"errors"
	"time"

	"challenge-quest/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert or update violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// ChallengeFilter narrows ListChallenges. Status is one of active, upcoming,
// completed or all, evaluated against Now.
type ChallengeFilter struct {
	Category   string
	Difficulty models.Difficulty
	Status     string
	Now        time.Time
	Limit      int
	Offset     int
}

// StageTransition describes a conditional status change of a stored StageProgress row.
type StageTransition struct {
	StageProgressID string
	From            models.StageStatus
	To              models.StageStatus
	At              time.Time
	SubmissionType  models.ProofType
	Content         string
}

// Store is the persistence contract. Transaction runs fn against a store bound
// to a single transaction; when fn returns an error nothing it wrote is kept.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// LockUser reads the user and, inside a transaction, holds it until commit.
	LockUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserXP(ctx context.Context, id string, xp int64, level int, levelUpAt *time.Time) error
	UpdateUserLevel(ctx context.Context, id string, level int) error
	SetUserActive(ctx context.Context, id string, active bool) error
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	// ListUsersRanked orders by xp desc, created_at asc, id asc.
	ListUsersRanked(ctx context.Context, limit, offset int) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	// CountUsersAhead counts users ordered strictly before u in the ranking.
	CountUsersAhead(ctx context.Context, u *models.User) (int64, error)

	ListLevels(ctx context.Context, activeOnly bool) ([]models.Level, error)
	GetLevel(ctx context.Context, id string) (*models.Level, error)
	CreateLevel(ctx context.Context, l *models.Level) error
	UpdateLevel(ctx context.Context, l *models.Level) error
	DeleteLevel(ctx context.Context, id string) error

	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id string) error

	CreateChallenge(ctx context.Context, c *models.Challenge) error
	// GetChallenge returns the challenge with its stages sorted by order.
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	// LockChallenge is GetChallenge holding the challenge row until commit.
	LockChallenge(ctx context.Context, id string) (*models.Challenge, error)
	ListChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, int64, error)
	UpdateChallenge(ctx context.Context, c *models.Challenge) error
	ReplaceStages(ctx context.Context, challengeID string, stages []models.Stage) error
	DeleteChallenge(ctx context.Context, id string) error
	CountChallenges(ctx context.Context) (int64, error)
	GetStage(ctx context.Context, id string) (*models.Stage, error)
	SetStageQRImage(ctx context.Context, stageID, url string) error
	SetChallengeImage(ctx context.Context, challengeID, url string) error

	CreateChallengeProgress(ctx context.Context, p *models.ChallengeProgress) error
	// GetChallengeProgress returns the enrollment with its stage rows.
	GetChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error)
	// LockChallengeProgress is GetChallengeProgress holding the enrollment row until commit.
	LockChallengeProgress(ctx context.Context, userID, challengeID string) (*models.ChallengeProgress, error)
	ListChallengeProgress(ctx context.Context, userID string, status *models.ProgressStatus) ([]models.ChallengeProgress, error)
	// CountProgress counts enrollments of challengeID, or of every challenge when it is empty.
	CountProgress(ctx context.Context, challengeID string, status *models.ProgressStatus) (int64, error)
	// CompleteChallengeProgress flips ACTIVE to COMPLETED. It reports false when
	// the row was no longer ACTIVE.
	CompleteChallengeProgress(ctx context.Context, id string, at time.Time) (bool, error)
	CreateStageProgress(ctx context.Context, sp *models.StageProgress) error
	// TransitionStage applies t only when the row is still in t.From.
	TransitionStage(ctx context.Context, t StageTransition) (bool, error)

	AddEvent(ctx context.Context, e *models.Event) error
	// PendingEvents returns unpublished, live events in id order.
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventPublished(ctx context.Context, id int64, at time.Time) error
	MarkEventFailed(ctx context.Context, id int64, reason string) error
	// MarkEventDead takes the event out of PendingEvents without publishing it.
	MarkEventDead(ctx context.Context, id int64, at time.Time) error
}
