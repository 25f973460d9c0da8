package models

import (
	"time"

	"gorm.io/datatypes"
)

// Chat is one persisted edit event. Message holds the payload exactly as it
// was fanned out; Payload keeps a JSON copy when the message is valid JSON so
// it can be queried in the database.
type Chat struct {
	ID        uint64         `gorm:"primarykey" json:"id"`
	RoomID    string         `gorm:"not null;index" json:"roomId"`
	UserID    string         `gorm:"not null" json:"userId"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Payload   datatypes.JSON `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
}
