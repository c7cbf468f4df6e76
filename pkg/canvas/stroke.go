// Package canvas holds the shared stroke model and a software rasterizer that
// renders a stroke log the way browsers draw it.
package canvas

import (
	"errors"
	"fmt"
	"image/color"
	"regexp"
)

const (
	Width  = 2000
	Height = 2000

	MaxPenWidth = 100
	MaxIDLength = 64
	MaxPoints   = 20000

	ToolPen    = "pen"
	ToolEraser = "eraser"
)

// LayerRenderOrder lists layers bottom to top.
var LayerRenderOrder = []int{2, 1}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{6}|[0-9a-fA-F]{3})$`)

type Stroke struct {
	ID      string    `json:"id"`
	Points  []float64 `json:"points"`
	Color   string    `json:"color"`
	Width   float64   `json:"width"`
	Tool    string    `json:"tool"`
	LayerID int       `json:"layer_id"`
}

var (
	ErrStrokeID     = errors.New("stroke id must be 1-64 characters")
	ErrStrokePoints = errors.New("stroke points must be an even list of 2 to 20000 values")
	ErrStrokeWidth  = errors.New("stroke width out of range")
	ErrStrokeColor  = errors.New("stroke color must be #rgb or #rrggbb")
	ErrStrokeTool   = errors.New("unknown tool")
	ErrStrokeLayer  = errors.New("unknown layer")
	ErrStrokeBounds = errors.New("stroke leaves the canvas")
)

func (s Stroke) Validate() error {
	if len(s.ID) == 0 || len(s.ID) > MaxIDLength {
		return ErrStrokeID
	}
	if len(s.Points) < 2 || len(s.Points)%2 != 0 || len(s.Points) > MaxPoints {
		return ErrStrokePoints
	}
	if s.Width <= 0 || s.Width > MaxPenWidth {
		return ErrStrokeWidth
	}
	if !hexColor.MatchString(s.Color) {
		return ErrStrokeColor
	}
	if s.Tool != ToolPen && s.Tool != ToolEraser {
		return fmt.Errorf("%w: %q", ErrStrokeTool, s.Tool)
	}
	if !knownLayer(s.LayerID) {
		return fmt.Errorf("%w: %d", ErrStrokeLayer, s.LayerID)
	}

	// Pointer capture can overshoot the edge a little; anything further is junk.
	const slackX, slackY = Width / 10, Height / 10
	for i := 0; i < len(s.Points); i += 2 {
		x, y := s.Points[i], s.Points[i+1]
		if x < -slackX || x > Width+slackX || y < -slackY || y > Height+slackY {
			return ErrStrokeBounds
		}
	}
	return nil
}

func knownLayer(id int) bool {
	for _, l := range LayerRenderOrder {
		if l == id {
			return true
		}
	}
	return false
}

// ParseColor understands #rgb and #rrggbb. Anything else renders black.
func ParseColor(s string) color.RGBA {
	black := color.RGBA{A: 255}
	if !hexColor.MatchString(s) {
		return black
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return black
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
