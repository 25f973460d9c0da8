// Package render rasterizes canvas state with gg. The engine calls Render on
// every change; the latest image can be read back or encoded as PNG.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"kalam-backend/internal/engine"
	"kalam-backend/internal/shape"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	arrowSize  = 12.0
	arrowAngle = 0.5
	dotRadius  = 1.5
)

var (
	background = color.Black
	ink        = color.White
	previewInk = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// Canvas is an engine.Renderer that keeps the last rendered frame.
type Canvas struct {
	width, height int
	lineWidth     float64

	mu   sync.Mutex
	last image.Image
}

var _ engine.Renderer = (*Canvas)(nil)

func NewCanvas(width, height int) *Canvas {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Canvas{width: width, height: height, lineWidth: 2}
}

func (c *Canvas) Render(f engine.Frame) error {
	img, err := Draw(c.width, c.height, c.lineWidth, f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.last = img
	c.mu.Unlock()
	return nil
}

// Image returns the last rendered frame, or nil before the first render.
func (c *Canvas) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// WritePNG encodes the last rendered frame. An empty canvas is rendered if
// nothing has been drawn yet.
func (c *Canvas) WritePNG(w io.Writer) error {
	img := c.Image()
	if img == nil {
		var err error
		if img, err = Draw(c.width, c.height, c.lineWidth, engine.Frame{}); err != nil {
			return err
		}
	}
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}

// PNG renders shapes on a fresh canvas and returns the encoded image.
func PNG(width, height int, shapes []shape.Shape) ([]byte, error) {
	c := NewCanvas(width, height)
	if err := c.Render(engine.Frame{Shapes: shapes}); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.WritePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Draw paints committed shapes in z-order, then the preview on top.
func Draw(width, height int, lineWidth float64, f engine.Frame) (image.Image, error) {
	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()
	dc.SetLineWidth(lineWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	dc.SetColor(ink)
	for i, s := range f.Shapes {
		if err := drawShape(dc, s); err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
	}
	if f.Preview != nil {
		dc.SetColor(previewInk)
		if err := drawShape(dc, f.Preview); err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
	}
	return dc.Image(), nil
}

func drawShape(dc *gg.Context, s shape.Shape) error {
	switch v := s.(type) {
	case shape.Rect:
		dc.DrawRectangle(v.X, v.Y, v.Width, v.Height)
		dc.Stroke()
	case shape.Circle:
		dc.DrawCircle(v.CenterX, v.CenterY, math.Abs(v.Radius))
		dc.Stroke()
	case shape.Line:
		dc.DrawLine(v.StartX, v.StartY, v.EndX, v.EndY)
		dc.Stroke()
		if v.IsArrow {
			drawArrowHead(dc, v.StartX, v.StartY, v.EndX, v.EndY)
		}
	case shape.Pencil:
		drawPolyline(dc, v.Points)
	case shape.EraserStroke:
		// removals only, never ink
	default:
		return fmt.Errorf("unsupported shape %T", s)
	}
	return nil
}

func drawPolyline(dc *gg.Context, pts []shape.Point) {
	switch len(pts) {
	case 0:
		return
	case 1:
		dc.DrawCircle(pts[0].X, pts[0].Y, dotRadius)
		dc.Fill()
		return
	}
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.Stroke()
}

func drawArrowHead(dc *gg.Context, fx, fy, tx, ty float64) {
	dx, dy := tx-fx, ty-fy
	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length

	dc.MoveTo(tx, ty)
	dc.LineTo(tx-arrowSize*dx+arrowSize*dy*arrowAngle, ty-arrowSize*dy-arrowSize*dx*arrowAngle)
	dc.LineTo(tx-arrowSize*dx-arrowSize*dy*arrowAngle, ty-arrowSize*dy+arrowSize*dx*arrowAngle)
	dc.ClosePath()
	dc.Fill()
}
