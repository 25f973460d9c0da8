package engine

import "kalam-backend/internal/shape"

type PointerKind int

const (
	PointerDown PointerKind = iota + 1
	PointerMove
	PointerUp
)

type PointerEvent struct {
	Kind PointerKind
	X    float64
	Y    float64
}

func (ev PointerEvent) point() shape.Point { return shape.Point{X: ev.X, Y: ev.Y} }

// InputSource is anything that can deliver pointer events, such as a UI
// toolkit adapter or a scripted replay. Subscribe returns a function that
// removes the listener.
type InputSource interface {
	Subscribe(fn func(PointerEvent)) (unsubscribe func())
}

// Attach starts consuming pointer events from src. Close detaches it.
func (e *Engine) Attach(src InputSource) {
	unsubscribe := src.Subscribe(e.HandlePointer)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		unsubscribe()
		return
	}
	prev := e.detach
	e.detach = unsubscribe
	e.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// HandlePointer advances the tool state machine. Moves only render previews,
// except for the freehand tools which extend the stroke on every move. The
// eraser removes shapes immediately rather than on release.
func (e *Engine) HandlePointer(ev PointerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	p := ev.point()
	switch ev.Kind {
	case PointerDown:
		e.pointerDown(p)
	case PointerMove:
		if e.state != StateDragging {
			return
		}
		e.pointerMove(p)
	case PointerUp:
		if e.state != StateDragging {
			return
		}
		e.pointerUp(p)
	default:
		return
	}
	e.render()
}

func (e *Engine) pointerDown(p shape.Point) {
	e.state = StateDragging
	e.start = p
	e.stroke = []shape.Point{p}
	e.preview = nil
	switch e.tool {
	case ToolPencil:
		e.preview = shape.Pencil{Points: e.stroke}
	case ToolEraser:
		e.eraseAt(p)
	}
}

func (e *Engine) pointerMove(p shape.Point) {
	switch e.tool {
	case ToolPencil:
		e.stroke = append(e.stroke, p)
		e.preview = shape.Pencil{Points: e.stroke}
	case ToolEraser:
		e.stroke = append(e.stroke, p)
		e.eraseAt(p)
	default:
		e.preview = e.dragShape(p)
	}
}

func (e *Engine) pointerUp(p shape.Point) {
	tool, start, stroke := e.tool, e.start, e.stroke
	e.resetDrag()
	switch tool {
	case ToolPencil:
		if last := stroke[len(stroke)-1]; last != p {
			stroke = append(stroke, p)
		}
		if len(stroke) == 1 {
			stroke = append(stroke, stroke[0])
		}
		e.commit(shape.Pencil{Points: append([]shape.Point(nil), stroke...)})
	case ToolEraser:
		// removals were already sent while dragging
	default:
		s := e.dragShapeFrom(start, p)
		if !hasExtent(s) {
			return
		}
		e.commit(s)
	}
}

// hasExtent reports whether a dragged shape covers more than a point. A drag
// that ends where it started, or a circle whose radius comes out as zero,
// commits nothing.
func hasExtent(s shape.Shape) bool {
	switch s := s.(type) {
	case shape.Rect:
		return s.Width != 0 || s.Height != 0
	case shape.Circle:
		return s.Radius != 0
	case shape.Line:
		return s.StartX != s.EndX || s.StartY != s.EndY
	default:
		return true
	}
}

// dragShape builds the shape spanned by the drag from e.start to p.
func (e *Engine) dragShape(p shape.Point) shape.Shape { return e.dragShapeFrom(e.start, p) }

func (e *Engine) dragShapeFrom(start, p shape.Point) shape.Shape {
	switch e.tool {
	case ToolCircle:
		return circleFromDrag(start, p)
	case ToolLine, ToolArrow:
		return shape.Line{StartX: start.X, StartY: start.Y, EndX: p.X, EndY: p.Y, IsArrow: e.tool == ToolArrow}
	default:
		return shape.Rect{X: start.X, Y: start.Y, Width: p.X - start.X, Height: p.Y - start.Y}
	}
}
