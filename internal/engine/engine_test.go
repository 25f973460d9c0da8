package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalam-backend/internal/shape"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []shape.Payload
}

func (s *recordingSender) Send(p shape.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
}

func (s *recordingSender) all() []shape.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shape.Payload(nil), s.sent...)
}

type recordingRenderer struct {
	frames []Frame
}

func (r *recordingRenderer) Render(f Frame) error {
	r.frames = append(r.frames, Frame{Shapes: shape.CloneAll(f.Shapes), Preview: f.Preview})
	return nil
}

func (r *recordingRenderer) last() Frame { return r.frames[len(r.frames)-1] }

func newEngine(t *testing.T, seed []shape.Shape, opts ...Option) (*Engine, *recordingSender, *recordingRenderer) {
	t.Helper()
	s := &recordingSender{}
	r := &recordingRenderer{}
	e, err := New("7", seed, append([]Option{WithSender(s), WithRenderer(r)}, opts...)...)
	require.NoError(t, err)
	return e, s, r
}

func drag(e *Engine, from, to shape.Point, via ...shape.Point) {
	e.HandlePointer(PointerEvent{Kind: PointerDown, X: from.X, Y: from.Y})
	for _, p := range via {
		e.HandlePointer(PointerEvent{Kind: PointerMove, X: p.X, Y: p.Y})
	}
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: to.X, Y: to.Y})
}

func TestRectDragCommitsOnRelease(t *testing.T) {
	e, s, r := newEngine(t, nil)

	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 10, Y: 10})
	assert.Equal(t, StateDragging, e.State())
	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 50, Y: 30})
	assert.Empty(t, e.Shapes(), "moves only preview")
	assert.Equal(t, shape.Rect{X: 10, Y: 10, Width: 40, Height: 20}, r.last().Preview)
	assert.Empty(t, s.all())

	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 110, Y: 60})
	assert.Equal(t, StateIdle, e.State())
	want := shape.Rect{X: 10, Y: 10, Width: 100, Height: 50}
	assert.Equal(t, []shape.Shape{want}, e.Shapes())
	require.Len(t, s.all(), 1)
	assert.Equal(t, shape.OpAppend, s.all()[0].Op())
	assert.Equal(t, want, s.all()[0].Shape)
	assert.Nil(t, r.last().Preview)
}

func TestCircleAndArrowCommit(t *testing.T) {
	e, s, _ := newEngine(t, nil, WithTool(ToolCircle))
	drag(e, shape.Point{X: 0, Y: 0}, shape.Point{X: 20, Y: 10})
	require.NoError(t, e.SetTool(ToolArrow))
	drag(e, shape.Point{X: 1, Y: 2}, shape.Point{X: 3, Y: 4})
	require.NoError(t, e.SetTool(ToolLine))
	drag(e, shape.Point{X: 5, Y: 5}, shape.Point{X: 6, Y: 6})

	assert.Equal(t, []shape.Shape{
		shape.Circle{CenterX: 10, CenterY: 10, Radius: 10},
		shape.Line{StartX: 1, StartY: 2, EndX: 3, EndY: 4, IsArrow: true},
		shape.Line{StartX: 5, StartY: 5, EndX: 6, EndY: 6},
	}, e.Shapes())
	assert.Len(t, s.all(), 3)
}

func TestCircleRadiusNeverNegative(t *testing.T) {
	e, _, _ := newEngine(t, nil, WithTool(ToolCircle))
	drag(e, shape.Point{X: 100, Y: 100}, shape.Point{X: 60, Y: 80})
	got := e.Shapes()
	require.Len(t, got, 1)
	c := got[0].(shape.Circle)
	assert.GreaterOrEqual(t, c.Radius, 0.0)
	assert.NoError(t, shape.Validate(c))
}

func TestClickWithoutDragCommitsNothing(t *testing.T) {
	e, s, _ := newEngine(t, nil)
	drag(e, shape.Point{X: 5, Y: 5}, shape.Point{X: 5, Y: 5})
	assert.Empty(t, e.Shapes())
	assert.Empty(t, s.all())
}

func TestDragWithoutExtentCommitsNothing(t *testing.T) {
	for _, tool := range []Tool{ToolRect, ToolCircle, ToolLine, ToolArrow} {
		t.Run(string(tool), func(t *testing.T) {
			e, s, r := newEngine(t, nil, WithTool(tool))
			drag(e, shape.Point{X: 5, Y: 5}, shape.Point{X: 5, Y: 5}, shape.Point{X: 40, Y: 30})
			assert.Empty(t, e.Shapes())
			assert.Empty(t, s.all())
			assert.Nil(t, r.last().Preview)
			assert.Equal(t, StateIdle, e.State())
		})
	}
}

func TestCircleDragStraightUpCommitsNothing(t *testing.T) {
	e, s, _ := newEngine(t, nil, WithTool(ToolCircle))
	drag(e, shape.Point{X: 0, Y: 0}, shape.Point{X: 0, Y: -10})
	assert.Empty(t, e.Shapes())
	assert.Empty(t, s.all())
}

func TestThinRectStillCommits(t *testing.T) {
	e, s, _ := newEngine(t, nil)
	drag(e, shape.Point{X: 5, Y: 5}, shape.Point{X: 5, Y: 25})
	assert.Equal(t, []shape.Shape{shape.Rect{X: 5, Y: 5, Width: 0, Height: 20}}, e.Shapes())
	assert.Len(t, s.all(), 1)
}

func TestPencilAccumulatesPoints(t *testing.T) {
	e, s, r := newEngine(t, nil, WithTool(ToolPencil))
	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 0, Y: 0})
	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 1, Y: 1})
	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 2, Y: 2})
	assert.Equal(t, shape.Pencil{Points: []shape.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}}, r.last().Preview)
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 2, Y: 2})

	require.Len(t, s.all(), 1)
	p := s.all()[0].Shape.(shape.Pencil)
	assert.Len(t, p.Points, 3)
	assert.NoError(t, shape.Validate(p))
}

func TestPencilDotHasTwoPoints(t *testing.T) {
	e, s, _ := newEngine(t, nil, WithTool(ToolPencil))
	drag(e, shape.Point{X: 4, Y: 4}, shape.Point{X: 4, Y: 4})
	require.Len(t, s.all(), 1)
	_, err := shape.EncodePayload(s.all()[0])
	assert.NoError(t, err)
}

func TestEraserRemovesTopmostImmediately(t *testing.T) {
	seed := []shape.Shape{
		shape.Rect{X: 10, Y: 10, Width: 100, Height: 50},
		shape.Circle{CenterX: 60, CenterY: 35, Radius: 5},
		shape.Line{StartX: 300, StartY: 300, EndX: 400, EndY: 300},
	}
	e, s, _ := newEngine(t, seed, WithTool(ToolEraser), WithEraserRadius(5))

	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 60, Y: 35})
	require.Len(t, s.all(), 1)
	assert.Equal(t, []int{1}, s.all()[0].Erased, "circle is drawn over the rect")

	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 350, Y: 303})
	require.Len(t, s.all(), 2)
	assert.Equal(t, []int{1}, s.all()[1].Erased, "indices refer to the canvas after the first removal")

	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 200, Y: 200})
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 200, Y: 200})
	assert.Len(t, s.all(), 2)
	assert.Equal(t, []shape.Shape{seed[0]}, e.Shapes())
}

func TestMoveWhileIdleIsIgnored(t *testing.T) {
	e, s, r := newEngine(t, nil)
	frames := len(r.frames)
	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 1, Y: 1})
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 1, Y: 1})
	assert.Equal(t, frames, len(r.frames))
	assert.Empty(t, s.all())
}

func TestRemoteEvents(t *testing.T) {
	e, s, r := newEngine(t, nil)

	e.ApplyRemote(shape.Append(shape.Rect{X: 1, Y: 1, Width: 1, Height: 1}))
	e.ApplyRemote(shape.Append(shape.Circle{CenterX: 1, CenterY: 1, Radius: 1}))
	e.ApplyRemote(shape.Append(shape.Line{EndX: 1, EndY: 1}))
	e.ApplyRemote(shape.Erase(0, 2, 9))
	assert.Equal(t, []shape.Shape{shape.Circle{CenterX: 1, CenterY: 1, Radius: 1}}, e.Shapes())
	assert.Equal(t, e.Shapes(), r.last().Shapes)
	assert.Empty(t, s.all(), "remote edits are not echoed")
}

func TestRemoteEmptyUndoClearsCanvas(t *testing.T) {
	seed := []shape.Shape{shape.Rect{X: 1, Y: 1, Width: 1, Height: 1}}
	e, _, r := newEngine(t, seed)
	require.NoError(t, e.ApplyMessage(`{"undo":true,"shapes":[]}`))
	assert.Empty(t, e.Shapes())
	assert.Empty(t, r.last().Shapes)

	e.HandlePointer(PointerEvent{Kind: PointerMove, X: 3, Y: 3})
	assert.Empty(t, r.last().Shapes)
}

func TestApplyMessageDropsMalformed(t *testing.T) {
	seed := []shape.Shape{shape.Rect{X: 1, Y: 1, Width: 1, Height: 1}}
	e, _, _ := newEngine(t, seed)
	err := e.ApplyMessage(`{"shape":{"type":"blob"}}`)
	assert.ErrorIs(t, err, shape.ErrShapeDecode)
	assert.Equal(t, seed, e.Shapes())
	assert.Equal(t, 1, e.HistoryLen())
}

func TestUndoBroadcastsFullState(t *testing.T) {
	seed := []shape.Shape{shape.Rect{X: 0, Y: 0, Width: 5, Height: 5}}
	e, s, _ := newEngine(t, seed)

	drag(e, shape.Point{X: 10, Y: 10}, shape.Point{X: 20, Y: 20})
	drag(e, shape.Point{X: 30, Y: 30}, shape.Point{X: 40, Y: 40})
	require.Len(t, e.Shapes(), 3)

	assert.True(t, e.Undo())
	assert.Len(t, e.Shapes(), 2)
	last := s.all()[len(s.all())-1]
	assert.Equal(t, shape.OpReplace, last.Op())
	assert.Equal(t, e.Shapes(), last.Shapes)

	assert.True(t, e.Undo())
	assert.Equal(t, seed, e.Shapes())

	sent := len(s.all())
	assert.False(t, e.Undo(), "seed snapshot is the floor")
	assert.Equal(t, seed, e.Shapes())
	assert.Len(t, s.all(), sent)
}

func TestUndoAfterRemoteAppend(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	e.ApplyRemote(shape.Append(shape.Rect{X: 1, Y: 1, Width: 1, Height: 1}))
	assert.True(t, e.Undo())
	assert.Empty(t, e.Shapes())
}

func TestHistoryCapacityBoundsUndo(t *testing.T) {
	e, _, _ := newEngine(t, nil, WithHistoryCapacity(3))
	for i := 0; i < 5; i++ {
		x := float64(i * 10)
		drag(e, shape.Point{X: x, Y: x}, shape.Point{X: x + 5, Y: x + 5})
	}
	assert.Equal(t, 3, e.HistoryLen())
	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.False(t, e.Undo())
	assert.Len(t, e.Shapes(), 3)
}

func TestResyncReplacesCanvasAndHistory(t *testing.T) {
	e, s, r := newEngine(t, nil)
	drag(e, shape.Point{X: 0, Y: 0}, shape.Point{X: 5, Y: 5})
	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 1, Y: 1})

	server := []shape.Shape{shape.Circle{CenterX: 3, CenterY: 3, Radius: 2}}
	var marked int
	e.Resync(server, func() { marked = len(s.all()) })

	assert.Equal(t, 1, marked)
	assert.Equal(t, server, e.Shapes())
	assert.Equal(t, server, r.last().Shapes)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 1, e.HistoryLen())
	assert.False(t, e.Undo(), "resynced state is the undo floor")

	e.Close()
	e.Resync(nil, func() { marked = -1 })
	assert.Equal(t, 1, marked)
}

func TestSetToolAbandonsDrag(t *testing.T) {
	e, s, _ := newEngine(t, nil)
	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 0, Y: 0})
	require.NoError(t, e.SetTool(ToolPencil))
	assert.Equal(t, StateIdle, e.State())
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 10, Y: 10})
	assert.Empty(t, s.all())

	assert.ErrorIs(t, e.SetTool("spray"), ErrUnknownTool)
}

type fakeSource struct {
	mu        sync.Mutex
	listeners map[int]func(PointerEvent)
	next      int
}

func (f *fakeSource) Subscribe(fn func(PointerEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = map[int]func(PointerEvent){}
	}
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSource) emit(ev PointerEvent) {
	f.mu.Lock()
	fns := make([]func(PointerEvent), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func TestCloseDetachesInput(t *testing.T) {
	src := &fakeSource{}
	e, s, _ := newEngine(t, nil)
	e.Attach(src)

	src.emit(PointerEvent{Kind: PointerDown, X: 0, Y: 0})
	src.emit(PointerEvent{Kind: PointerUp, X: 5, Y: 5})
	require.Len(t, s.all(), 1)

	e.Close()
	assert.Empty(t, src.listeners)
	e.HandlePointer(PointerEvent{Kind: PointerDown, X: 0, Y: 0})
	e.HandlePointer(PointerEvent{Kind: PointerUp, X: 5, Y: 5})
	e.ApplyRemote(shape.Append(shape.Rect{Width: 1, Height: 1}))
	assert.Len(t, s.all(), 1)
	assert.Len(t, e.Shapes(), 1)
	assert.False(t, e.Undo())
}

func TestReplaySkipsBadEntries(t *testing.T) {
	got := Replay([]string{
		`{"shape":{"type":"rect","x":0,"y":0,"width":1,"height":1}}`,
		`not json`,
		`{"shape":{"type":"circle","centerX":0,"centerY":0,"radius":1}}`,
		`{"erased":[0]}`,
		`{"shape":{"type":"line","startX":0,"startY":0,"endX":1,"endY":1,"isArrow":true}}`,
	})
	assert.Equal(t, []shape.Shape{
		shape.Circle{CenterX: 0, CenterY: 0, Radius: 1},
		shape.Line{EndX: 1, EndY: 1, IsArrow: true},
	}, got)
}
