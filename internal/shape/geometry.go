package shape

import "math"

// HitTest reports whether p touches s within tol. Interiors of rectangles and
// circles count as hits.
func HitTest(s Shape, p Point, tol float64) bool {
	switch v := s.(type) {
	case Rect:
		minX, maxX := ordered(v.X, v.X+v.Width)
		minY, maxY := ordered(v.Y, v.Y+v.Height)
		return p.X >= minX-tol && p.X <= maxX+tol && p.Y >= minY-tol && p.Y <= maxY+tol
	case Circle:
		return math.Hypot(p.X-v.CenterX, p.Y-v.CenterY) <= math.Abs(v.Radius)+tol
	case Line:
		return segmentDistance(p, Point{X: v.StartX, Y: v.StartY}, Point{X: v.EndX, Y: v.EndY}) <= tol
	case Pencil:
		return polylineDistance(p, v.Points) <= tol
	case EraserStroke:
		return false
	default:
		return false
	}
}

// Topmost returns the index of the most recently drawn shape hit by p.
func Topmost(shapes []Shape, p Point, tol float64) (int, bool) {
	for i := len(shapes) - 1; i >= 0; i-- {
		if HitTest(shapes[i], p, tol) {
			return i, true
		}
	}
	return -1, false
}

func ordered(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

func polylineDistance(p Point, pts []Point) float64 {
	switch len(pts) {
	case 0:
		return math.Inf(1)
	case 1:
		return math.Hypot(p.X-pts[0].X, p.Y-pts[0].Y)
	}
	best := math.Inf(1)
	for i := 1; i < len(pts); i++ {
		if d := segmentDistance(p, pts[i-1], pts[i]); d < best {
			best = d
		}
	}
	return best
}

func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
