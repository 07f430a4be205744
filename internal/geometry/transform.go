// Package geometry maps points between the natural image, the on-screen canvas
// and normalized [0,1] space for the trip-line overlay.
package geometry

import "math"

// Size is a width/height pair in pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Point is an x/y pair. Which space it lives in depends on the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.W > 0 && s.H > 0
}

// Transform converts between image pixels and canvas pixels for an image
// letterboxed into its canvas with preserved aspect ratio.
type Transform struct {
	ScaleX  float64 `json:"scaleX"`
	ScaleY  float64 `json:"scaleY"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Identity is returned whenever the inputs cannot produce a real transform.
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// NewTransform computes the letterbox transform.
//
// display is the image's rendered size, used only for its aspect ratio;
// canvas is the bounding box the pointer coordinates are measured in.
func NewTransform(natural, display, canvas Size) Transform {
	if !natural.Valid() || !display.Valid() || !canvas.Valid() {
		return Identity()
	}

	imageAspect := display.W / display.H
	canvasAspect := canvas.W / canvas.H

	var renderedW, renderedH, offsetX, offsetY float64
	if imageAspect > canvasAspect {
		// bars top and bottom
		renderedW = canvas.W
		renderedH = canvas.W / imageAspect
		offsetY = (canvas.H - renderedH) / 2
	} else {
		// bars left and right
		renderedH = canvas.H
		renderedW = canvas.H * imageAspect
		offsetX = (canvas.W - renderedW) / 2
	}

	return Transform{
		ScaleX:  renderedW / natural.W,
		ScaleY:  renderedH / natural.H,
		OffsetX: offsetX,
		OffsetY: offsetY,
	}
}

// ToScreen maps an image-space point onto the canvas.
func (t Transform) ToScreen(p Point) Point {
	return Point{
		X: p.X*t.ScaleX + t.OffsetX,
		Y: p.Y*t.ScaleY + t.OffsetY,
	}
}

// ToImage maps a canvas point back into image space.
func (t Transform) ToImage(p Point) Point {
	return Point{
		X: (p.X - t.OffsetX) / t.ScaleX,
		Y: (p.Y - t.OffsetY) / t.ScaleY,
	}
}

// ImageTolerance converts a radius in screen pixels into image pixels using
// the smaller scale, so the hit area is never smaller than requested.
func (t Transform) ImageTolerance(screenPx float64) float64 {
	return screenPx / math.Min(t.ScaleX, t.ScaleY)
}

// Clamp limits p to [0,W]x[0,H].
func Clamp(p Point, bounds Size) Point {
	return Point{
		X: math.Max(0, math.Min(bounds.W, p.X)),
		Y: math.Max(0, math.Min(bounds.H, p.Y)),
	}
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Normalize divides a point by the image size. A degenerate size yields zero.
func Normalize(p Point, natural Size) Point {
	if !natural.Valid() {
		return Point{}
	}
	return Point{X: p.X / natural.W, Y: p.Y / natural.H}
}
