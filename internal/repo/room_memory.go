package repo

import (
	"kalam-backend/internal/models"
	"sync"
	"time"
)

// MemoryRoomRepo is the room store used when no database is configured.
type MemoryRoomRepo struct {
	mu    sync.RWMutex
	next  uint
	rooms []models.Room
}

func NewMemoryRoomRepository() *MemoryRoomRepo {
	return &MemoryRoomRepo{}
}

func (r *MemoryRoomRepo) CreateRoom(room *models.Room) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.Slug == room.Slug {
			return 0, ErrDuplicateSlug
		}
	}
	r.next++
	room.ID = r.next
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt
	r.rooms = append(r.rooms, *room)
	return room.ID, nil
}

func (r *MemoryRoomRepo) GetRoomBySlug(slug string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.Slug == slug {
			found := room
			return &found, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (r *MemoryRoomRepo) GetRoomsByAdmin(adminID string) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := []models.Room{}
	for _, room := range r.rooms {
		if room.AdminID == adminID {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}
