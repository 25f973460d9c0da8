package models

import (
	"time"
)

// Room represents the database model
type Room struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	AdminID   string    `gorm:"not null;index" json:"adminId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
