package libraries

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kalam-backend/internal/models"
	"kalam-backend/internal/repo"
)

// Persister appends chats to the store on a background worker so fan-out
// never waits on storage. Failures are logged and dropped.
type Persister struct {
	store   repo.ChatRepoInterface
	queue   chan models.Chat
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPersister(store repo.ChatRepoInterface, queueSize int, timeout time.Duration) *Persister {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Persister{
		store:   store,
		queue:   make(chan models.Chat, queueSize),
		timeout: timeout,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue schedules chat for storage. It returns false if the queue is full
// or the persister is closed.
func (p *Persister) Enqueue(chat models.Chat) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- chat:
		return true
	default:
		log.Warn().Str("room", chat.RoomID).Str("user", chat.UserID).Msg("persist queue full, dropping chat")
		return false
	}
}

// Close stops accepting chats and waits for queued ones to be written.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Persister) run() {
	defer p.wg.Done()
	for chat := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.store.CreateChat(ctx, &chat); err != nil {
			log.Error().Err(err).Str("room", chat.RoomID).Str("user", chat.UserID).Msg("persist chat failed")
		}
		cancel()
	}
}
