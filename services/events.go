package services

import (
	"context"
	"encoding/json"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"

	"gorm.io/datatypes"
)

type ChallengeJoinedPayload struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	ProgressID  string    `json:"progress_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

type StageCompletedPayload struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	StageID     string    `json:"stage_id"`
	StageOrder  int       `json:"stage_order"`
	CompletedAt time.Time `json:"completed_at"`
}

type ChallengeCompletedPayload struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	XPAwarded   int64     `json:"xp_awarded"`
	TotalXP     int64     `json:"total_xp"`
	CompletedAt time.Time `json:"completed_at"`
}

type LevelUpPayload struct {
	UserID    string `json:"user_id"`
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	TotalXP   int64  `json:"total_xp"`
}

// addEvent writes an outbox row inside the caller's transaction so the event
// exists if and only if the state change commits.
func addEvent(ctx context.Context, tx repository.Store, eventType, aggregateID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return Infra(err)
	}
	event := models.Event{
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     datatypes.JSON(data),
	}
	if err := tx.AddEvent(ctx, &event); err != nil {
		return Infra(err)
	}
	return nil
}
