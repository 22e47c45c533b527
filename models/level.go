package models

// Level is one XP tier. MinXP is inclusive; a nil MaxXP marks the open-ended top tier.
type Level struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Number   int    `gorm:"uniqueIndex;not null" json:"number"`
	Name     string `gorm:"not null" json:"name"`
	MinXP    int64  `gorm:"not null;default:0" json:"min_xp"`
	MaxXP    *int64 `json:"max_xp"`
	IsActive bool   `gorm:"not null" json:"is_active"`

	Timestamps
}
