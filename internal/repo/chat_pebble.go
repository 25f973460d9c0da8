package repo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"kalam-backend/internal/models"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

var seqKey = []byte("meta/chat-seq")

// PebbleChatRepo persists chats in an embedded Pebble store. Keys are
// chat/<len>:<roomID>/ followed by an 8-byte big-endian sequence number, so a
// prefix scan yields one room's chats in insertion order.
type PebbleChatRepo struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

// OpenPebbleChatRepo opens (or creates) the store at dir. opts may be nil.
func OpenPebbleChatRepo(dir string, opts *pebble.Options) (*PebbleChatRepo, error) {
	if opts == nil {
		opts = &pebble.Options{}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	r := &PebbleChatRepo{db: db, next: 1}
	val, closer, err := db.Get(seqKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("read chat sequence: %w", err)
	default:
		if len(val) == 8 {
			r.next = binary.BigEndian.Uint64(val)
		}
		_ = closer.Close()
	}
	return r, nil
}

func roomPrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("chat/%d:%s/", len(roomID), roomID))
}

func chatKey(roomID string, seq uint64) []byte {
	key := roomPrefix(roomID)
	return binary.BigEndian.AppendUint64(key, seq)
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func (r *PebbleChatRepo) CreateChat(ctx context.Context, chat *models.Chat) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chat.ID = r.next
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	val, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("%w: encode chat: %w", ErrPersistence, err)
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, r.next+1)

	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Set(chatKey(chat.RoomID, chat.ID), val, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := b.Set(seqKey, next, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit chat: %w", ErrPersistence, err)
	}
	r.next++
	return nil
}

// GetRoomHistory walks the room prefix backwards to collect the newest limit
// chats and returns them oldest first.
func (r *PebbleChatRepo) GetRoomHistory(ctx context.Context, roomID string, limit int) ([]models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	limit = clampLimit(limit)
	prefix := roomPrefix(roomID)
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer func() { _ = it.Close() }()

	out := make([]models.Chat, 0, 64)
	for it.Last(); it.Valid() && len(out) < limit; it.Prev() {
		var c models.Chat
		if err := json.Unmarshal(it.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	reverse(out)
	return out, nil
}

func (r *PebbleChatRepo) Close() error {
	return r.db.Close()
}
