package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformedShape is returned when a shape tag is unknown or a required
	// field is missing or not finite.
	ErrMalformedShape = errors.New("malformed shape")
	// ErrShapeDecode is returned when an edit payload cannot be decoded.
	ErrShapeDecode = errors.New("shape payload decode error")
)

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireShape struct {
	Type    Kind        `json:"type"`
	X       *float64    `json:"x,omitempty"`
	Y       *float64    `json:"y,omitempty"`
	Width   *float64    `json:"width,omitempty"`
	Height  *float64    `json:"height,omitempty"`
	CenterX *float64    `json:"centerX,omitempty"`
	CenterY *float64    `json:"centerY,omitempty"`
	Radius  *float64    `json:"radius,omitempty"`
	StartX  *float64    `json:"startX,omitempty"`
	StartY  *float64    `json:"startY,omitempty"`
	EndX    *float64    `json:"endX,omitempty"`
	EndY    *float64    `json:"endY,omitempty"`
	IsArrow *bool       `json:"isArrow,omitempty"`
	Points  []wirePoint `json:"points,omitempty"`
}

// Validate reports whether s satisfies the invariants of a committed shape.
func Validate(s Shape) error {
	switch v := s.(type) {
	case Rect:
		return finite(v.X, v.Y, v.Width, v.Height)
	case Circle:
		if err := finite(v.CenterX, v.CenterY, v.Radius); err != nil {
			return err
		}
		if v.Radius < 0 {
			return fmt.Errorf("%w: negative radius %v", ErrMalformedShape, v.Radius)
		}
		return nil
	case Pencil:
		return validStroke(v.Points)
	case EraserStroke:
		return validStroke(v.Points)
	case Line:
		return finite(v.StartX, v.StartY, v.EndX, v.EndY)
	case nil:
		return fmt.Errorf("%w: nil shape", ErrMalformedShape)
	default:
		return fmt.Errorf("%w: unsupported shape %T", ErrMalformedShape, s)
	}
}

func validStroke(pts []Point) error {
	if len(pts) < 2 {
		return fmt.Errorf("%w: stroke needs at least 2 points, got %d", ErrMalformedShape, len(pts))
	}
	for _, p := range pts {
		if err := finite(p.X, p.Y); err != nil {
			return err
		}
	}
	return nil
}

func finite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrMalformedShape)
		}
	}
	return nil
}

func toWire(s Shape) (wireShape, error) {
	if err := Validate(s); err != nil {
		return wireShape{}, err
	}
	w := wireShape{Type: s.Kind()}
	switch v := s.(type) {
	case Rect:
		w.X, w.Y, w.Width, w.Height = &v.X, &v.Y, &v.Width, &v.Height
	case Circle:
		w.CenterX, w.CenterY, w.Radius = &v.CenterX, &v.CenterY, &v.Radius
	case Pencil:
		w.Points = fromPoints(v.Points)
	case EraserStroke:
		w.Points = fromPoints(v.Points)
	case Line:
		w.StartX, w.StartY, w.EndX, w.EndY = &v.StartX, &v.StartY, &v.EndX, &v.EndY
		w.IsArrow = &v.IsArrow
	}
	return w, nil
}

func fromPoints(pts []Point) []wirePoint {
	out := make([]wirePoint, len(pts))
	for i := range pts {
		out[i] = wirePoint{X: &pts[i].X, Y: &pts[i].Y}
	}
	return out
}

func (w wireShape) toShape() (Shape, error) {
	var s Shape
	switch w.Type {
	case KindRect:
		if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil {
			return nil, fmt.Errorf("%w: rect requires x, y, width, height", ErrMalformedShape)
		}
		s = Rect{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}
	case KindCircle:
		if w.CenterX == nil || w.CenterY == nil || w.Radius == nil {
			return nil, fmt.Errorf("%w: circle requires centerX, centerY, radius", ErrMalformedShape)
		}
		s = Circle{CenterX: *w.CenterX, CenterY: *w.CenterY, Radius: *w.Radius}
	case KindLine:
		if w.StartX == nil || w.StartY == nil || w.EndX == nil || w.EndY == nil {
			return nil, fmt.Errorf("%w: line requires startX, startY, endX, endY", ErrMalformedShape)
		}
		l := Line{StartX: *w.StartX, StartY: *w.StartY, EndX: *w.EndX, EndY: *w.EndY}
		if w.IsArrow != nil {
			l.IsArrow = *w.IsArrow
		}
		s = l
	case KindPencil, KindEraser:
		pts := make([]Point, 0, len(w.Points))
		for i, p := range w.Points {
			if p.X == nil || p.Y == nil {
				return nil, fmt.Errorf("%w: point %d requires x and y", ErrMalformedShape, i)
			}
			pts = append(pts, Point{X: *p.X, Y: *p.Y})
		}
		if w.Type == KindPencil {
			s = Pencil{Points: pts}
		} else {
			s = EraserStroke{Points: pts}
		}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedShape)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedShape, w.Type)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode serializes one shape to its JSON wire form.
func Encode(s Shape) ([]byte, error) {
	w, err := toWire(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Decode parses one shape from its JSON wire form.
func Decode(data []byte) (Shape, error) {
	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedShape, err)
	}
	return w.toShape()
}
