package lineeditor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

const (
	EndpointRadius       = 8.0
	EndpointRadiusActive = 10.0
	strokeWidth          = 3.0
)

// Palette holds a feature's line color and the endpoint color ladder.
type Palette struct {
	StrokeHex string
	Stroke    color.RGBA
	Rest      color.RGBA
	Hover     color.RGBA
	Dragging  color.RGBA
}

var strokeByFeature = map[types.Feature]string{
	types.FeatureMotion:    "#29b6f6",
	types.FeatureFace:      "#ff4081",
	types.FeatureCrossline: "#00e676",
	types.FeaturePipeline:  "#ffab00",
}

// PaletteFor returns the palette for a feature.
func PaletteFor(feature types.Feature) Palette {
	hex, ok := strokeByFeature[feature]
	if !ok {
		hex = "#ffffff"
	}
	return Palette{
		StrokeHex: hex,
		Stroke:    parseHex(hex),
		Rest:      color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Hover:     color.RGBA{R: 255, G: 235, B: 59, A: 255},
		Dragging:  color.RGBA{R: 255, G: 87, B: 34, A: 255},
	}
}

func parseHex(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{A: 255}
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// EndpointStyle returns the radius and color an endpoint is drawn with.
func (e *Editor) EndpointStyle(t Target) (float64, color.RGBA) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endpointStyleLocked(t)
}

func (e *Editor) endpointStyleLocked(t Target) (float64, color.RGBA) {
	switch {
	case e.drag != nil && *e.drag == t:
		return EndpointRadiusActive, e.palette.Dragging
	case e.hover != nil && *e.hover == t:
		return EndpointRadiusActive, e.palette.Hover
	default:
		return EndpointRadius, e.palette.Rest
	}
}

// Render draws the overlay at the natural image size on a transparent
// background. It returns nil until the image size is known.
func (e *Editor) Render() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, h := int(e.natural.W+0.5), int(e.natural.H+0.5)
	if w <= 0 || h <= 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for i, l := range e.lines {
		stroke := parseHex(l.Color)
		if l.Color == "" {
			stroke = e.palette.Stroke
		}
		fillPolygon(dst, segmentQuad(l.StartX, l.StartY, l.EndX, l.EndY, strokeWidth), stroke)

		for _, ep := range []struct {
			end  Endpoint
			x, y float64
		}{{Start, l.StartX, l.StartY}, {End, l.EndX, l.EndY}} {
			radius, c := e.endpointStyleLocked(Target{LineID: l.ID, Endpoint: ep.end})
			fillPolygon(dst, circle(ep.x, ep.y, radius), c)
		}

		drawLabel(dst, int(l.StartX)+12, int(l.StartY)+4, fmt.Sprintf("L%d", i+1), stroke)
	}
	return dst
}

func fillPolygon(dst draw.Image, pts [][2]float64, c color.Color) {
	if len(pts) < 3 {
		return
	}
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	// The rasterizer expects points inside its own bounds; endpoints dragged to
	// the image edge get their circle flattened instead.
	clamp := func(p [2]float64) (float32, float32) {
		return float32(math.Max(0, math.Min(w, p[0]))), float32(math.Max(0, math.Min(h, p[1])))
	}

	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over
	r.MoveTo(clamp(pts[0]))
	for _, p := range pts[1:] {
		r.LineTo(clamp(p))
	}
	r.ClosePath()
	r.Draw(dst, b, image.NewUniform(c), image.Point{})
}

func segmentQuad(x0, y0, x1, y1, width float64) [][2]float64 {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	return [][2]float64{
		{x0 + nx, y0 + ny},
		{x1 + nx, y1 + ny},
		{x1 - nx, y1 - ny},
		{x0 - nx, y0 - ny},
	}
}

func circle(cx, cy, radius float64) [][2]float64 {
	const segments = 32
	pts := make([][2]float64, segments)
	for i := range segments {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = [2]float64{cx + radius*math.Cos(a), cy + radius*math.Sin(a)}
	}
	return pts
}

func drawLabel(dst draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
