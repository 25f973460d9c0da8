package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalam-backend/internal/engine"
	"kalam-backend/internal/shape"
)

func isInk(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r > 0x8000 && g > 0x8000 && b > 0x8000
}

func TestDrawShapes(t *testing.T) {
	img, err := Draw(200, 200, 2, engine.Frame{Shapes: []shape.Shape{
		shape.Rect{X: 10, Y: 10, Width: 100, Height: 50},
		shape.Line{StartX: 0, StartY: 150, EndX: 190, EndY: 150},
		shape.Circle{CenterX: 150, CenterY: 100, Radius: 20},
		shape.EraserStroke{Points: []shape.Point{{X: 60, Y: 100}, {X: 70, Y: 100}}},
	}})
	require.NoError(t, err)

	assert.True(t, isInk(img, 10, 35), "rect left border")
	assert.False(t, isInk(img, 60, 35), "rect interior is not filled")
	assert.True(t, isInk(img, 100, 150), "line")
	assert.True(t, isInk(img, 170, 100), "circle border")
	assert.False(t, isInk(img, 65, 100), "eraser strokes leave no ink")
	assert.False(t, isInk(img, 195, 5), "background")
}

func TestEmptyFrameIsBlank(t *testing.T) {
	img, err := Draw(50, 50, 2, engine.Frame{})
	require.NoError(t, err)
	for y := 0; y < 50; y += 7 {
		for x := 0; x < 50; x += 7 {
			require.False(t, isInk(img, x, y))
		}
	}
}

func TestPreviewDrawnOnTop(t *testing.T) {
	c := NewCanvas(100, 100)
	require.Nil(t, c.Image())
	require.NoError(t, c.Render(engine.Frame{Preview: shape.Line{StartX: 0, StartY: 50, EndX: 99, EndY: 50, IsArrow: true}}))

	r, g, b, _ := c.Image().At(50, 50).RGBA()
	assert.NotZero(t, r+g+b, "preview is visible")
	assert.Less(t, r, uint32(0xffff), "preview uses a dimmer ink")
}

func TestCanvasAsEngineRenderer(t *testing.T) {
	c := NewCanvas(120, 120)
	e, err := engine.New("1", nil, engine.WithRenderer(c), engine.WithTool(engine.ToolPencil))
	require.NoError(t, err)

	e.HandlePointer(engine.PointerEvent{Kind: engine.PointerDown, X: 10, Y: 60})
	e.HandlePointer(engine.PointerEvent{Kind: engine.PointerMove, X: 60, Y: 60})
	e.HandlePointer(engine.PointerEvent{Kind: engine.PointerUp, X: 110, Y: 60})

	require.NotNil(t, c.Image())
	assert.True(t, isInk(c.Image(), 80, 60))
}

func TestPNG(t *testing.T) {
	data, err := PNG(64, 32, []shape.Shape{shape.Pencil{Points: []shape.Point{{X: 1, Y: 1}, {X: 30, Y: 20}}}})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), img.Bounds())
}
