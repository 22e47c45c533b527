package models

type Category struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	Icon        string `json:"icon"`
	Color       string `gorm:"type:varchar(32)" json:"color"`
	IsActive    bool   `gorm:"not null" json:"is_active"`

	Timestamps
}
