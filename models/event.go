package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventChallengeJoined    = "challenge.joined"
	EventStageCompleted     = "stage.completed"
	EventChallengeCompleted = "challenge.completed"
	EventUserLevelUp        = "user.level_up"
)

// Event is a transactional outbox row. It is written in the same transaction as
// the state change it describes and relayed to the broker afterwards.
type Event struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Type        string         `gorm:"index;not null" json:"type"`
	AggregateID string         `gorm:"index;not null" json:"aggregate_id"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	PublishedAt *time.Time     `gorm:"index" json:"published_at,omitempty"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	// DeadAt is set once the relay gives up on the event; it is never published after that.
	DeadAt      *time.Time     `gorm:"index" json:"dead_at,omitempty"`
}
