package types

// Line is a trip-line segment in natural image pixels.
type Line struct {
	ID     int64   `json:"id"`     // Creation time in unix millis, unique per editor
	StartX float64 `json:"startX"` // Image-space coordinates
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
	Color  string  `json:"color"` // CSS color, fixed per feature
}

// NormalizedLine is a Line divided by the natural image size (values in [0,1]).
type NormalizedLine struct {
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}

// WireLine is a Line with coordinates rounded to whole pixels, as the
// appliance expects them.
type WireLine struct {
	ID     int64  `json:"id"`
	StartX int    `json:"startX"`
	StartY int    `json:"startY"`
	EndX   int    `json:"endX"`
	EndY   int    `json:"endY"`
	Color  string `json:"color"`
}

// LinesPayload is the body of POST /{crossline|pipeline}/lines.
type LinesPayload struct {
	Lines       []WireLine `json:"lines"`
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
}
