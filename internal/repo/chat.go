package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"kalam-backend/internal/models"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrPersistence wraps every storage failure of a chat store.
var ErrPersistence = errors.New("persistence failure")

const (
	DefaultHistoryLimit = 1000
	MaxHistoryLimit     = 5000
)

type ChatRepo struct {
	db *gorm.DB
}

// ChatRepoInterface is the storage contract of the relay: append one edit
// event, and read a room's recent events oldest first.
type ChatRepoInterface interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetRoomHistory(ctx context.Context, roomID string, limit int) ([]models.Chat, error)
}

func NewChatRepository(db *gorm.DB) ChatRepoInterface {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	if json.Valid([]byte(chat.Message)) {
		chat.Payload = datatypes.JSON(chat.Message)
	}
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("%w: create chat: %w", ErrPersistence, err)
	}
	return nil
}

// GetRoomHistory returns the newest limit chats of a room in insertion order.
func (r *ChatRepo) GetRoomHistory(ctx context.Context, roomID string, limit int) ([]models.Chat, error) {
	limit = clampLimit(limit)

	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Select("id", "room_id", "user_id", "message", "created_at").
		Where("room_id = ?", roomID).
		Order("id desc").
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("%w: room history: %w", ErrPersistence, err)
	}
	reverse(chats)
	return chats, nil
}

// sane defaults + cap
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func reverse(chats []models.Chat) {
	for i, j := 0, len(chats)-1; i < j; i, j = i+1, j-1 {
		chats[i], chats[j] = chats[j], chats[i]
	}
}
