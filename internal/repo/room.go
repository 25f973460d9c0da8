package repo

import (
	"errors"
	"kalam-backend/internal/models"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrDuplicateSlug = errors.New("room slug already taken")
)

// RoomRepo represents the repository for the room model
type RoomRepo struct {
	db *gorm.DB
}

type RoomRepoInterface interface {
	CreateRoom(room *models.Room) (uint, error)
	GetRoomBySlug(slug string) (*models.Room, error)
	GetRoomsByAdmin(adminID string) ([]models.Room, error)
}

func NewRoomRepository(db *gorm.DB) RoomRepoInterface {
	return &RoomRepo{db: db}
}

// CreateRoom creates a new room in the database
func (r *RoomRepo) CreateRoom(room *models.Room) (uint, error) {
	room.CreatedAt = time.Now()
	room.UpdatedAt = time.Now()
	err := r.db.Create(room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, ErrDuplicateSlug
	}
	return room.ID, err
}

// GetRoomBySlug resolves a room slug to its record
func (r *RoomRepo) GetRoomBySlug(slug string) (*models.Room, error) {
	var room models.Room
	err := r.db.Where("slug = ?", slug).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoomsByAdmin returns the rooms created by adminID
func (r *RoomRepo) GetRoomsByAdmin(adminID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.Where("admin_id = ?", adminID).Order("id asc").Find(&rooms).Error
	return rooms, err
}
