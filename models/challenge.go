package models

import (
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type ProofType string

const (
	ProofQRCode ProofType = "QR_CODE"
	ProofGPS    ProofType = "GPS"
)

func (p ProofType) Valid() bool {
	return p == ProofQRCode || p == ProofGPS
}

// Challenge is a time-windowed quest made of strictly ordered stages.
// Category is a soft reference to Category.Name.
type Challenge struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	Title           string     `gorm:"not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Category        string     `gorm:"index" json:"category"`
	Difficulty      Difficulty `gorm:"type:varchar(16);not null" json:"difficulty"`
	XPReward        int64      `gorm:"not null" json:"xp_reward"`
	RequiredLevel   int        `gorm:"not null;default:1" json:"required_level"`
	StartDate       time.Time  `gorm:"not null" json:"start_date"`
	EndDate         time.Time  `gorm:"not null" json:"end_date"`
	IsActive        bool       `gorm:"not null" json:"is_active"`
	MaxParticipants *int       `json:"max_participants,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`

	Stages []Stage `gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`

	Timestamps
}

// InWindow reports whether t falls inside [StartDate, EndDate].
func (c *Challenge) InWindow(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// Stage is one ordered step of a challenge. QRCode holds the expected decoded
// payload and is never sent to players. The GPS fields are stored but not enforced.
type Stage struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_stage_order,priority:1" json:"challenge_id"`
	Order        int       `gorm:"column:stage_order;not null;uniqueIndex:idx_stage_order,priority:2" json:"order"`
	Title        string    `gorm:"not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	ProofType    ProofType `gorm:"type:varchar(16);not null;default:'QR_CODE'" json:"proof_type"`
	QRCode       string    `json:"-"`
	QRImageURL   string    `json:"qr_image_url,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	RadiusMeters *float64  `json:"radius_meters,omitempty"`

	Timestamps
}
