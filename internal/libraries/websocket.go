package libraries

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	localsUserID  = "userId"
)

// ConnState is the lifecycle stage of a relay connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one authenticated socket. Frames for it are queued on Send and
// written by its write loop.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	state  atomic.Int32
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendQueueSize),
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

// TrySend queues msg without blocking. It returns false when the client is
// closed or its queue is full.
func (c *Client) TrySend(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// Close stops accepting frames and ends the write loop. Safe to call more
// than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
		c.setState(StateClosed)
	})
}

// Authenticator is the token check performed before the upgrade.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// UpgradeMiddleware authenticates the ?token= query parameter before the
// WebSocket handshake. Rejected connections get 401 and never reach the
// registry.
func UpgradeMiddleware(authn Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		userID, err := authn.Authenticate(token)
		if err != nil {
			log.Info().Err(err).Str("remote", c.IP()).Msg("relay handshake rejected")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credential")
		}
		c.Locals(localsUserID, userID)
		return c.Next()
	}
}

// WebSocketHandler runs the relay protocol on an authenticated socket.
func WebSocketHandler(relay *Relay) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(localsUserID).(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		client := relay.Connect(userID, conn)
		defer relay.Disconnect(client)

		// Write loop
		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Debug().Err(err).Str("client", client.ID).Msg("write failed")
					relay.Disconnect(client)
					_ = conn.Close()
					return
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		// Read loop
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					log.Warn().Err(err).Str("client", client.ID).Msg("read error")
				}
				break
			}
			if err := relay.HandleMessage(client, msg); err != nil {
				if errors.Is(err, ErrMalformedMessage) {
					log.Warn().Err(err).Str("client", client.ID).Msg("dropping inbound frame")
					continue
				}
				log.Error().Err(err).Str("client", client.ID).Msg("handle message")
			}
		}
		relay.Disconnect(client)
		<-done
	})
}
