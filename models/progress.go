package models

import (
	"time"
)

type ProgressStatus string

const (
	ProgressActive    ProgressStatus = "ACTIVE"
	ProgressCompleted ProgressStatus = "COMPLETED"
)

func (s ProgressStatus) Valid() bool {
	return s == ProgressActive || s == ProgressCompleted
}

// StageStatus is the per-stage sub-state. LOCKED is derived and never persisted.
type StageStatus string

const (
	StageLocked    StageStatus = "LOCKED"
	StagePending   StageStatus = "PENDING"
	StageCompleted StageStatus = "COMPLETED"
	StageSkipped   StageStatus = "SKIPPED"
)

// ChallengeProgress is a user's enrollment in a challenge; one per (user, challenge).
type ChallengeProgress struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string         `gorm:"type:uuid;not null;uniqueIndex:idx_user_challenge,priority:1" json:"user_id"`
	ChallengeID string         `gorm:"type:uuid;not null;uniqueIndex:idx_user_challenge,priority:2;index" json:"challenge_id"`
	Status      ProgressStatus `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	JoinedAt    time.Time      `gorm:"not null" json:"joined_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	StageProgress []StageProgress `gorm:"foreignKey:ChallengeProgressID;constraint:OnDelete:CASCADE" json:"stage_progress,omitempty"`

	Timestamps
}

// StageFor returns the stored row for stageID, or nil when the stage has never transitioned.
func (p *ChallengeProgress) StageFor(stageID string) *StageProgress {
	for i := range p.StageProgress {
		if p.StageProgress[i].StageID == stageID {
			return &p.StageProgress[i]
		}
	}
	return nil
}

type StageProgress struct {
	ID                  string      `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeProgressID string      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_stage,priority:1" json:"challenge_progress_id"`
	StageID             string      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_stage,priority:2" json:"stage_id"`
	Status              StageStatus `gorm:"type:varchar(16);not null" json:"status"`
	SubmittedAt         *time.Time  `json:"submitted_at,omitempty"`
	SubmissionType      *ProofType  `gorm:"type:varchar(16)" json:"submission_type,omitempty"`
	Content             string      `gorm:"type:text" json:"content,omitempty"`

	Timestamps
}
