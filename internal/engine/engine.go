// Package engine is the client-side drawing state machine. It turns pointer
// input into shape mutations, applies edit events received from the relay,
// drives the undo history and asks a Renderer to redraw after every change.
package engine

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"kalam-backend/internal/history"
	"kalam-backend/internal/shape"
)

type Tool string

const (
	ToolRect   Tool = "rect"
	ToolCircle Tool = "circle"
	ToolLine   Tool = "line"
	ToolArrow  Tool = "arrow"
	ToolPencil Tool = "pencil"
	ToolEraser Tool = "eraser"
)

var ErrUnknownTool = errors.New("unknown tool")

// ParseTool validates a tool name.
func ParseTool(name string) (Tool, error) {
	switch t := Tool(name); t {
	case ToolRect, ToolCircle, ToolLine, ToolArrow, ToolPencil, ToolEraser:
		return t, nil
	default:
		return "", ErrUnknownTool
	}
}

type State int

const (
	StateIdle State = iota
	StateDragging
)

const DefaultEraserRadius = 10

// Sender delivers locally produced edits to peers. Send must not block.
type Sender interface {
	Send(p shape.Payload)
}

// Frame is what a Renderer draws. Preview is the uncommitted shape under the
// pointer, or nil. Renderers must not retain the slices.
type Frame struct {
	Shapes  []shape.Shape
	Preview shape.Shape
}

type Renderer interface {
	Render(f Frame) error
}

type Option func(*Engine)

func WithSender(s Sender) Option { return func(e *Engine) { e.sender = s } }

func WithRenderer(r Renderer) Option { return func(e *Engine) { e.renderer = r } }

func WithEraserRadius(r float64) Option { return func(e *Engine) { e.eraserRadius = r } }

func WithHistoryCapacity(n int) Option { return func(e *Engine) { e.capacity = n } }

func WithTool(t Tool) Option { return func(e *Engine) { e.tool = t } }

type Engine struct {
	mu           sync.Mutex
	roomID       string
	tool         Tool
	state        State
	start        shape.Point
	stroke       []shape.Point
	preview      shape.Shape
	shapes       []shape.Shape
	history      *history.Store
	sender       Sender
	renderer     Renderer
	eraserRadius float64
	capacity     int
	detach       func()
	closed       bool
}

type nopSender struct{}

func (nopSender) Send(shape.Payload) {}

type nopRenderer struct{}

func (nopRenderer) Render(Frame) error { return nil }

// New creates an engine for roomID whose canvas starts as seed. The seed is
// the floor of the undo history.
func New(roomID string, seed []shape.Shape, opts ...Option) (*Engine, error) {
	e := &Engine{
		roomID:       roomID,
		tool:         ToolRect,
		sender:       nopSender{},
		renderer:     nopRenderer{},
		eraserRadius: DefaultEraserRadius,
		capacity:     history.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := ParseTool(string(e.tool)); err != nil {
		return nil, err
	}
	h, err := history.New(e.capacity, seed)
	if err != nil {
		return nil, err
	}
	e.history = h
	e.shapes = shape.CloneAll(seed)
	e.render()
	return e, nil
}

func (e *Engine) RoomID() string { return e.roomID }

// Shapes returns a copy of the current canvas state.
func (e *Engine) Shapes() []shape.Shape {
	e.mu.Lock()
	defer e.mu.Unlock()
	return shape.CloneAll(e.shapes)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Tool() Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

// HistoryLen reports how many undo snapshots are held.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// SetTool switches the active tool. An in-progress drag is abandoned.
func (e *Engine) SetTool(t Tool) error {
	if _, err := ParseTool(string(t)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = t
	if e.state == StateDragging {
		e.resetDrag()
		e.render()
	}
	return nil
}

// ApplyRemote applies an edit received from the relay.
func (e *Engine) ApplyRemote(p shape.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.shapes = Apply(e.shapes, p)
	e.history.Push(e.shapes)
	e.render()
}

// ApplyMessage decodes a chat message and applies it. A message that does
// not decode is dropped and the canvas is left untouched.
func (e *Engine) ApplyMessage(msg string) error {
	p, err := shape.DecodePayload(msg)
	if err != nil {
		return err
	}
	e.ApplyRemote(p)
	return nil
}

// Resync replaces the canvas with shapes and makes it the new undo floor.
// mark, if set, runs with the engine still locked, so no local edit can be
// sent between the replacement and mark.
func (e *Engine) Resync(shapes []shape.Shape, mark func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.resetDrag()
	e.shapes = shape.CloneAll(shapes)
	e.history.Reset(e.shapes)
	if mark != nil {
		mark()
	}
	e.render()
}

// Undo restores the previous snapshot and broadcasts the full canvas so peers
// converge on it. It returns false when only the seed snapshot remains.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	snap, ok := e.history.Undo()
	if !ok {
		return false
	}
	e.shapes = snap
	e.sender.Send(shape.Replace(e.shapes))
	e.render()
	return true
}

// Close stops the engine: pointer listeners are detached, history is
// released and later events are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	detach := e.detach
	e.detach = nil
	e.closed = true
	e.resetDrag()
	e.history.Clear()
	e.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func (e *Engine) commit(s shape.Shape) {
	e.shapes = append(e.shapes, s)
	e.history.Push(e.shapes)
	e.sender.Send(shape.Append(s))
}

func (e *Engine) eraseAt(p shape.Point) {
	idx, ok := shape.Topmost(e.shapes, p, e.eraserRadius)
	if !ok {
		return
	}
	e.shapes = Apply(e.shapes, shape.Erase(idx))
	e.history.Push(e.shapes)
	e.sender.Send(shape.Erase(idx))
}

func (e *Engine) resetDrag() {
	e.state = StateIdle
	e.stroke = nil
	e.preview = nil
}

func (e *Engine) render() {
	if err := e.renderer.Render(Frame{Shapes: e.shapes, Preview: e.preview}); err != nil {
		log.Warn().Err(err).Str("room", e.roomID).Msg("render failed")
	}
}

// Apply returns the canvas that results from applying p to shapes. The input
// slice is not modified. Out of range erase indices are ignored.
func Apply(shapes []shape.Shape, p shape.Payload) []shape.Shape {
	switch p.Op() {
	case shape.OpAppend:
		out := make([]shape.Shape, 0, len(shapes)+1)
		out = append(out, shapes...)
		return append(out, shape.Clone(p.Shape))
	case shape.OpErase:
		drop := make(map[int]struct{}, len(p.Erased))
		for _, i := range p.Erased {
			drop[i] = struct{}{}
		}
		out := make([]shape.Shape, 0, len(shapes))
		for i, s := range shapes {
			if _, gone := drop[i]; !gone {
				out = append(out, s)
			}
		}
		return out
	case shape.OpReplace:
		return shape.CloneAll(p.Shapes)
	default:
		return shapes
	}
}

// Replay rebuilds a canvas from persisted chat messages, oldest first.
// Messages that do not decode are skipped.
func Replay(messages []string) []shape.Shape {
	canvas := []shape.Shape{}
	for _, m := range messages {
		p, err := shape.DecodePayload(m)
		if err != nil {
			log.Debug().Err(err).Msg("skipping undecodable history entry")
			continue
		}
		canvas = Apply(canvas, p)
	}
	return canvas
}

func circleFromDrag(start, end shape.Point) shape.Circle {
	r := math.Max(end.X-start.X, end.Y-start.Y) / 2
	return shape.Circle{CenterX: start.X + r, CenterY: start.Y + r, Radius: math.Abs(r)}
}
