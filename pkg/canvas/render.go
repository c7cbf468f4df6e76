package canvas

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

type RenderOptions struct {
	// Scale multiplies the output resolution. Zero means 1.
	Scale float64
}

// Render paints strokes in order onto a white canvas. Each layer is drawn on
// its own transparent surface so an eraser only removes ink from its layer.
func Render(strokes []Stroke, opts RenderOptions) *image.RGBA {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	w, h := int(Width*scale), int(Height*scale)
	bounds := image.Rect(0, 0, w, h)

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.White, image.Point{}, draw.Src)

	for _, layerID := range LayerRenderOrder {
		layer := image.NewRGBA(bounds)
		drawn := false
		for _, s := range strokes {
			if s.LayerID != layerID || len(s.Points) < 2 {
				continue
			}
			if s.Tool == ToolEraser {
				erase(layer, s, scale)
			} else {
				paint(layer, s, scale)
			}
			drawn = true
		}
		if drawn {
			draw.Draw(out, bounds, layer, image.Point{}, draw.Over)
		}
	}
	return out
}

func paint(dst *image.RGBA, s Stroke, scale float64) {
	b := dst.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	scanner.SetColor(ParseColor(s.Color))
	strokePath(rasterx.NewStroker(b.Dx(), b.Dy(), scanner), s, scale)
}

// erase clears the stroke footprint from dst, matching destination-out.
func erase(dst *image.RGBA, s Stroke, scale float64) {
	b := dst.Bounds()
	mask := image.NewAlpha(b)
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), mask, b)
	scanner.SetColor(color.Alpha{A: 255})
	strokePath(rasterx.NewStroker(b.Dx(), b.Dy(), scanner), s, scale)

	draw.DrawMask(dst, b, image.Transparent, image.Point{}, mask, image.Point{}, draw.Src)
}

func strokePath(st *rasterx.Stroker, s Stroke, scale float64) {
	st.SetStroke(fixed.Int26_6(s.Width*scale*64), 4*64, rasterx.RoundCap, nil, rasterx.RoundGap, rasterx.Round)

	st.Start(rasterx.ToFixedP(s.Points[0]*scale, s.Points[1]*scale))
	if len(s.Points) == 2 {
		// a tap: nudge so the round caps produce a dot
		st.Line(rasterx.ToFixedP(s.Points[0]*scale+0.01, s.Points[1]*scale))
	}
	for i := 2; i+1 < len(s.Points); i += 2 {
		st.Line(rasterx.ToFixedP(s.Points[i]*scale, s.Points[i+1]*scale))
	}
	st.Stop(false)
	st.Draw()
}
