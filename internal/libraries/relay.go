package libraries

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"

	"kalam-backend/internal/models"
)

// Bridge forwards fan-out frames to other relay processes.
type Bridge interface {
	Publish(ctx context.Context, roomID RoomID, frame []byte) error
}

const bridgeQueueSize = 1024

// Relay validates inbound frames, hands chat events to the persister and
// fans them out to room members.
type Relay struct {
	registry       *Registry
	persister      *Persister
	bridge         Bridge
	publishTimeout time.Duration

	pubMu sync.RWMutex
	pub   *publisher
}

type RelayOption func(*Relay)

func WithPersister(p *Persister) RelayOption { return func(r *Relay) { r.persister = p } }

func WithBridge(b Bridge) RelayOption { return func(r *Relay) { r.bridge = b } }

func NewRelay(registry *Registry, opts ...RelayOption) *Relay {
	r := &Relay{registry: registry, publishTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	if r.bridge != nil {
		r.pub = newPublisher(r.bridge, r.publishTimeout)
	}
	return r
}

func (r *Relay) Registry() *Registry { return r.registry }

// UseBridge sets the bridge after construction, for bridges that need the
// relay to deliver remote frames.
func (r *Relay) UseBridge(b Bridge) {
	r.pubMu.Lock()
	prev := r.pub
	r.bridge = b
	r.pub = newPublisher(b, r.publishTimeout)
	r.pubMu.Unlock()
	if prev != nil {
		prev.close()
	}
}

// Close flushes frames still waiting for the bridge.
func (r *Relay) Close() {
	r.pubMu.Lock()
	pub := r.pub
	r.pub = nil
	r.pubMu.Unlock()
	if pub != nil {
		pub.close()
	}
}

// Connect registers an authenticated socket and makes it active.
func (r *Relay) Connect(userID string, conn *websocket.Conn) *Client {
	client := NewClient(userID, conn)
	r.registry.Register(client, userID)
	client.setState(StateActive)
	log.Info().Str("client", client.ID).Str("user", userID).Msg("client connected")
	return client
}

// Disconnect unregisters the client and closes its queue. Safe to call more
// than once.
func (r *Relay) Disconnect(client *Client) {
	if client == nil {
		return
	}
	if client.State() != StateClosed {
		log.Info().Str("client", client.ID).Str("user", client.UserID).Msg("client disconnected")
	}
	r.registry.Unregister(client)
	client.Close()
}

// HandleMessage dispatches one inbound frame. Errors wrapping
// ErrMalformedMessage mean the frame was dropped; the connection stays usable.
func (r *Relay) HandleMessage(client *Client, raw []byte) error {
	msg, err := parseWebSocketMessage(raw)
	if err != nil {
		return err
	}
	switch msg.Type {
	case WebSocketMessageTypeJoinRoom:
		r.registry.Join(client, msg.RoomID)
	case WebSocketMessageTypeLeaveRoom:
		r.registry.Leave(client, msg.RoomID)
	case WebSocketMessageTypePing:
		pong, _ := json.Marshal(WebSocketMessage{Type: WebSocketMessageTypePong})
		client.TrySend(pong)
	case WebSocketMessageTypeChat:
		return r.handleChat(client, msg)
	}
	return nil
}

func (r *Relay) handleChat(client *Client, msg *WebSocketMessage) error {
	text, err := canonicalMessage(msg.Message)
	if err != nil {
		return err
	}
	if r.persister != nil {
		r.persister.Enqueue(models.Chat{RoomID: msg.RoomID.String(), UserID: client.UserID, Message: text})
	}
	frame, err := EncodeChatFrameFrom(msg.RoomID, text, msg.ClientMsgID)
	if err != nil {
		return err
	}
	r.Deliver(msg.RoomID, frame)
	r.pubMu.RLock()
	if r.pub != nil {
		r.pub.enqueue(msg.RoomID, frame)
	}
	r.pubMu.RUnlock()
	return nil
}

// Deliver fans frame out to the local members of roomID.
func (r *Relay) Deliver(roomID RoomID, frame []byte) int {
	return r.registry.Broadcast(roomID, frame)
}

type bridgeFrame struct {
	roomID RoomID
	frame  []byte
}

// publisher hands frames to the bridge on a single worker, so frames leave
// this process in the order they were relayed.
type publisher struct {
	bridge  Bridge
	timeout time.Duration
	queue   chan bridgeFrame

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newPublisher(b Bridge, timeout time.Duration) *publisher {
	p := &publisher{bridge: b, timeout: timeout, queue: make(chan bridgeFrame, bridgeQueueSize)}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *publisher) enqueue(roomID RoomID, frame []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- bridgeFrame{roomID: roomID, frame: frame}:
	default:
		log.Warn().Str("room", roomID.String()).Msg("bridge queue full, dropping frame")
	}
}

func (p *publisher) close() {
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

func (p *publisher) run() {
	defer p.wg.Done()
	for f := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.bridge.Publish(ctx, f.roomID, f.frame); err != nil {
			log.Warn().Err(err).Str("room", f.roomID.String()).Msg("bridge publish failed")
		}
		cancel()
	}
}
