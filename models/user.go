package models

import (
	"time"
)

// User is a registered player. XP only ever grows; Level is a cache of the
// level resolved from XP and is rewritten whenever XP or the level table changes.
type User struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	Email         string     `gorm:"uniqueIndex;not null" json:"email"`
	Username      string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash  string     `gorm:"not null" json:"-"`
	XP            int64      `gorm:"not null;default:0;index:idx_users_ranking,priority:1,sort:desc" json:"xp"`
	Level         int        `gorm:"not null;default:1" json:"level"`
	IsAdmin       bool       `gorm:"not null;default:false" json:"is_admin"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_users_ranking,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
