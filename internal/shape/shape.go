package shape

// Kind is the wire tag of a shape.
type Kind string

const (
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindPencil Kind = "pencil"
	KindLine   Kind = "line"
	KindEraser Kind = "eraser"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawable primitive. The set of implementations is closed:
// only the types in this package satisfy it.
type Shape interface {
	Kind() Kind
	sealed()
}

type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

type Circle struct {
	CenterX float64
	CenterY float64
	Radius  float64
}

// Pencil is a freehand stroke.
type Pencil struct {
	Points []Point
}

// Line is a straight segment, drawn with an arrow head at the end when IsArrow is set.
type Line struct {
	StartX  float64
	StartY  float64
	EndX    float64
	EndY    float64
	IsArrow bool
}

// EraserStroke records the path of an eraser drag. It only drives removals
// and is never rendered.
type EraserStroke struct {
	Points []Point
}

func (Rect) Kind() Kind         { return KindRect }
func (Circle) Kind() Kind       { return KindCircle }
func (Pencil) Kind() Kind       { return KindPencil }
func (Line) Kind() Kind         { return KindLine }
func (EraserStroke) Kind() Kind { return KindEraser }

func (Rect) sealed()         {}
func (Circle) sealed()       {}
func (Pencil) sealed()       {}
func (Line) sealed()         {}
func (EraserStroke) sealed() {}

// Clone returns a deep copy of s.
func Clone(s Shape) Shape {
	switch v := s.(type) {
	case Pencil:
		return Pencil{Points: clonePoints(v.Points)}
	case EraserStroke:
		return EraserStroke{Points: clonePoints(v.Points)}
	default:
		return s
	}
}

// CloneAll deep copies a canvas state. The result is never nil.
func CloneAll(shapes []Shape) []Shape {
	out := make([]Shape, len(shapes))
	for i, s := range shapes {
		out[i] = Clone(s)
	}
	return out
}

func clonePoints(pts []Point) []Point {
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}
