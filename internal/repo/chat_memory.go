package repo

import (
	"context"
	"kalam-backend/internal/models"
	"sync"
	"time"
)

// MemoryChatRepo keeps chats in process memory. History is lost on restart.
type MemoryChatRepo struct {
	mu    sync.RWMutex
	next  uint64
	rooms map[string][]models.Chat
}

func NewMemoryChatRepository() *MemoryChatRepo {
	return &MemoryChatRepo{rooms: make(map[string][]models.Chat)}
}

func (r *MemoryChatRepo) CreateChat(_ context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	chat.ID = r.next
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	r.rooms[chat.RoomID] = append(r.rooms[chat.RoomID], *chat)
	return nil
}

func (r *MemoryChatRepo) GetRoomHistory(_ context.Context, roomID string, limit int) ([]models.Chat, error) {
	limit = clampLimit(limit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	chats := r.rooms[roomID]
	if len(chats) > limit {
		chats = chats[len(chats)-limit:]
	}
	out := make([]models.Chat, len(chats))
	copy(out, chats)
	return out, nil
}
