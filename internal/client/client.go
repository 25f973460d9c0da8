// Package client connects a drawing engine to the relay over WebSocket.
//
// Sends never block: frames go through a bounded queue that a writer
// goroutine drains, and are dropped when the queue is full. The socket is
// re-dialed with capped backoff when it drops, and join_room is re-sent each
// time.
//
// Every chat carries a clientMsgId of the form "<client id>:<seq>" which the
// relay copies into its fan-out. Echoes of this client's own edits are
// recognised by that id and skipped, so a lost echo or a reconnect cannot make
// the sender apply its own edit twice.
//
// With Options.History set, the client resyncs after every (re)connect: it
// fetches the room history, replaces the canvas with it, and sends a ping.
// Chats that arrive before the pong are held back; the ones already covered
// by the fetched history are dropped and the rest are applied.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kalam-backend/internal/engine"
	"kalam-backend/internal/libraries"
	"kalam-backend/internal/shape"
)

type Status int32

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultQueueSize  = 256
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
	writeWait         = 5 * time.Second
	closeWait         = time.Second
	syncWait          = 5 * time.Second
	maxSyncBuffer     = 4096
)

var ErrClosed = errors.New("client closed")

type Options struct {
	// URL is the relay endpoint, e.g. ws://localhost:3000/api/v1/ws.
	URL    string
	Token  string
	RoomID string

	QueueSize  int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer

	// OnStatus is called on every status change.
	OnStatus func(Status)

	// History, if set, returns the persisted room history, oldest first. It is
	// called after every successful connect to resync the canvas.
	History func() ([]string, error)
}

type outbound struct {
	seq  uint64
	data []byte
}

// syncState holds the chats received between a resync fetch and the pong
// that marks the end of the overlap with that fetch.
type syncState struct {
	history []string
	live    []string
	started time.Time
}

// Client is an engine.Sender bound to one room.
type Client struct {
	opts   Options
	roomID libraries.RoomID
	id     string

	queue   chan outbound
	status  atomic.Int32
	sendMu  sync.Mutex
	seq     atomic.Uint64
	written atomic.Uint64

	handlerMu sync.RWMutex
	handler   func(string)
	resync    func(history []string, mark func())

	// Owned by the Run goroutine, which also runs the read loop.
	syncing              *syncState
	replayFrom, replayTo uint64

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

var _ engine.Sender = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("relay url not set")
	}
	if opts.RoomID == "" {
		return nil, fmt.Errorf("room id not set")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:   opts,
		roomID: libraries.RoomID(opts.RoomID),
		id:     uuid.NewString(),
		queue:  make(chan outbound, opts.QueueSize),
		done:   make(chan struct{}),
	}, nil
}

// Bind routes received edit events into e and lets resyncs replace its
// canvas.
func (c *Client) Bind(e *engine.Engine) {
	c.OnMessage(func(msg string) {
		if err := e.ApplyMessage(msg); err != nil {
			log.Warn().Err(err).Str("room", e.RoomID()).Msg("dropping edit event")
		}
	})
	c.OnResync(func(history []string, mark func()) {
		e.Resync(engine.Replay(history), mark)
	})
}

// OnMessage sets the callback for chat messages from other clients.
func (c *Client) OnMessage(fn func(string)) {
	c.handlerMu.Lock()
	c.handler = fn
	c.handlerMu.Unlock()
}

// OnResync sets the callback that replaces local state with the fetched
// history. It must call mark exactly once, at the point after which local
// edits are no longer wiped by the replacement.
func (c *Client) OnResync(fn func(history []string, mark func())) {
	c.handlerMu.Lock()
	c.resync = fn
	c.handlerMu.Unlock()
}

func (c *Client) Status() Status { return Status(c.status.Load()) }

func (c *Client) setStatus(s Status) {
	if Status(c.status.Swap(int32(s))) == s {
		return
	}
	log.Debug().Str("room", c.opts.RoomID).Stringer("status", s).Msg("relay status")
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}

// Send implements engine.Sender. It never blocks.
func (c *Client) Send(p shape.Payload) {
	msg, err := shape.EncodePayload(p)
	if err != nil {
		log.Error().Err(err).Msg("encode payload")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	// seq order must match queue order
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	seq := c.seq.Add(1)
	frame, err := c.frame(libraries.WebSocketMessageTypeChat, msg, c.msgID(seq))
	if err != nil {
		log.Error().Err(err).Msg("encode frame")
		return
	}
	select {
	case c.queue <- outbound{seq: seq, data: frame}:
	default:
		log.Warn().Str("room", c.opts.RoomID).Msg("send queue full, dropping edit")
	}
}

func (c *Client) msgID(seq uint64) string {
	return c.id + ":" + strconv.FormatUint(seq, 10)
}

// ownSeq reports whether id names one of this client's sends, and which.
func (c *Client) ownSeq(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, c.id+":")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(rest, 10, 64)
	return seq, err == nil
}

func (c *Client) frame(t libraries.WebSocketMessageType, message, clientMsgID string) ([]byte, error) {
	m := libraries.WebSocketMessage{Type: t, RoomID: c.roomID, ClientMsgID: clientMsgID}
	if t == libraries.WebSocketMessageTypeChat {
		raw, err := json.Marshal(message)
		if err != nil {
			return nil, err
		}
		m.Message = raw
	}
	return json.Marshal(m)
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials once and joins the room. Run calls it in a loop.
func (c *Client) Connect(ctx context.Context) (*websocket.Conn, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	join, err := c.frame(libraries.WebSocketMessageTypeJoinRoom, "", "")
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := c.write(conn, join, writeWait); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join room: %w", err)
	}
	return conn, nil
}

// Run keeps the client connected until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	c.setStatus(StatusConnecting)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.MinBackoff
	bo.MaxInterval = c.opts.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	for {
		if c.isDone(ctx) {
			c.setStatus(StatusClosed)
			return nil
		}
		conn, err := c.Connect(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			log.Warn().Err(err).Dur("retry_in", wait).Msg("relay connect failed")
			c.setStatus(StatusReconnecting)
			if !c.sleep(ctx, wait) {
				c.setStatus(StatusClosed)
				return nil
			}
			continue
		}
		bo.Reset()
		c.setConn(conn)
		if c.isDone(ctx) {
			_ = conn.Close()
			c.setConn(nil)
			c.setStatus(StatusClosed)
			return nil
		}
		c.setStatus(StatusOpen)
		c.startSync(conn)

		err = c.serve(ctx, conn)
		c.setConn(nil)
		c.syncing = nil
		if c.isDone(ctx) {
			c.setStatus(StatusClosed)
			return nil
		}
		log.Warn().Err(err).Msg("relay connection lost")
		c.setStatus(StatusReconnecting)
	}
}

// startSync fetches history, replaces local state with it and writes the
// ping whose pong ends the overlap window. Nothing is read from conn until it
// returns.
func (c *Client) startSync(conn *websocket.Conn) {
	if c.opts.History == nil {
		return
	}
	history, err := c.opts.History()
	if err != nil {
		log.Warn().Err(err).Str("room", c.opts.RoomID).Msg("history fetch failed, not resyncing")
		return
	}
	c.applyHistory(history)

	ping, err := c.frame(libraries.WebSocketMessageTypePing, "", "")
	if err == nil {
		err = c.write(conn, ping, writeWait)
	}
	if err != nil {
		log.Debug().Err(err).Msg("sync ping not sent")
		return
	}
	c.syncing = &syncState{history: history, started: time.Now()}
	log.Debug().Str("room", c.opts.RoomID).Int("messages", len(history)).Msg("resynced canvas")
}

// applyHistory replaces local state with history. Sends after the last
// written frame and up to the replacement are not in history yet, so their
// echoes will be applied.
func (c *Client) applyHistory(history []string) {
	floor := c.written.Load()
	mark := func() { c.replayFrom, c.replayTo = floor, c.seq.Load() }
	c.handlerMu.RLock()
	resync := c.resync
	c.handlerMu.RUnlock()
	if resync != nil {
		resync(history, mark)
	} else {
		mark()
	}
}

// finishSync drops the held chats already covered by the fetched history
// and delivers the rest.
func (c *Client) finishSync() {
	s := c.syncing
	c.syncing = nil
	for _, msg := range s.live[historyOverlap(s.history, s.live):] {
		c.deliver(msg)
	}
}

// historyOverlap returns the length of the longest prefix of live that is
// also a suffix of history.
func historyOverlap(history, live []string) int {
	for n := min(len(history), len(live)); n > 0; n-- {
		tail := history[len(history)-n:]
		match := true
		for i := range n {
			if tail[i] != live[i] {
				match = false
				break
			}
		}
		if match {
			return n
		}
	}
	return 0
}

// serve runs the read loop on the caller and the write loop in a goroutine.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-c.done:
				_ = conn.Close()
				return
			case out := <-c.queue:
				if err := c.write(conn, out.data, writeWait); err != nil {
					log.Debug().Err(err).Msg("relay write failed")
					_ = conn.Close()
					return
				}
				c.written.Store(out.seq)
			}
		}
	}()

	var err error
	for {
		var data []byte
		if _, data, err = conn.ReadMessage(); err != nil {
			break
		}
		c.dispatch(data)
	}
	close(stop)
	<-writerDone
	_ = conn.Close()
	return err
}

func (c *Client) dispatch(data []byte) {
	var frame libraries.ChatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Msg("bad frame from relay")
		return
	}
	if frame.Type == libraries.WebSocketMessageTypePong {
		if c.syncing != nil {
			c.finishSync()
		}
		return
	}
	if frame.Type != libraries.WebSocketMessageTypeChat || frame.RoomID != c.roomID {
		return
	}
	if c.isEcho(frame.ClientMsgID) {
		return
	}
	if c.syncing != nil {
		c.syncing.live = append(c.syncing.live, frame.Message)
		if len(c.syncing.live) >= maxSyncBuffer || time.Since(c.syncing.started) > syncWait {
			log.Warn().Str("room", c.opts.RoomID).Msg("no pong from relay, ending resync")
			c.finishSync()
		}
		return
	}
	c.deliver(frame.Message)
}

// isEcho reports whether id marks the relay's echo of an edit this client
// already applied locally. Edits sent before a resync replaced the canvas
// are not skipped, so the replacement does not lose them.
func (c *Client) isEcho(id string) bool {
	seq, own := c.ownSeq(id)
	if !own {
		return false
	}
	return seq <= c.replayFrom || seq > c.replayTo
}

func (c *Client) deliver(msg string) {
	c.handlerMu.RLock()
	fn := c.handler
	c.handlerMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (c *Client) write(conn *websocket.Conn, frame []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) isDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

// Close sends leave_room best-effort and closes the socket.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			if leave, ferr := c.frame(libraries.WebSocketMessageTypeLeaveRoom, "", ""); ferr == nil {
				if werr := c.write(conn, leave, closeWait); werr != nil {
					log.Debug().Err(werr).Msg("leave_room not sent")
				}
			}
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWait))
			c.writeMu.Unlock()
		}
		close(c.done)
		if conn != nil {
			if err = conn.Close(); errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
		c.setStatus(StatusClosed)
	})
	return err
}
