// Package linesync pushes an editor's trip-lines to the appliance.
//
// Pushes are fire and forget: a failed push is reported to the caller but
// never retried or rolled back. The next edit pushes the whole set again.
package linesync

import (
	"context"
	"math"
	"sync"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/geometry"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// Pusher is the part of device.Client the syncer needs.
type Pusher interface {
	PostLines(ctx context.Context, feature types.Feature, payload types.LinesPayload) error
}

// Client syncs one feature's lines and keeps the normalized copy of the last
// successful push for the coordinate panel.
type Client struct {
	feature types.Feature
	pusher  Pusher
	metrics *metrics.Metrics
	log     logger.Module

	mu         sync.Mutex
	normalized []types.NormalizedLine
}

// New returns a sync client for feature. m may be nil.
func New(feature types.Feature, pusher Pusher, m *metrics.Metrics) *Client {
	return &Client{
		feature:    feature,
		pusher:     pusher,
		metrics:    m,
		log:        logger.For("LineSync"),
		normalized: []types.NormalizedLine{},
	}
}

// Sync pushes lines to the appliance as whole-pixel coordinates.
func (c *Client) Sync(ctx context.Context, lines []types.Line, imageWidth, imageHeight int) device.Result {
	payload := Payload(lines, imageWidth, imageHeight)

	err := c.pusher.PostLines(ctx, c.feature, payload)
	c.metrics.LineSync(string(c.feature), err == nil)
	if err != nil {
		c.log.Warn("%s: push of %d line(s) failed: %v", c.feature, len(lines), err)
		return device.ResultOf(err)
	}

	normalized := Normalize(lines, imageWidth, imageHeight)
	c.mu.Lock()
	c.normalized = normalized
	c.mu.Unlock()

	c.log.Debug("%s: pushed %d line(s) for %dx%d", c.feature, len(lines), imageWidth, imageHeight)
	return device.Result{Success: true}
}

// Normalized returns a copy of the cache from the last successful push.
func (c *Client) Normalized() []types.NormalizedLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.NormalizedLine, len(c.normalized))
	copy(out, c.normalized)
	return out
}

// Payload builds the wire body, rounding every coordinate.
func Payload(lines []types.Line, imageWidth, imageHeight int) types.LinesPayload {
	wire := make([]types.WireLine, 0, len(lines))
	for _, l := range lines {
		wire = append(wire, types.WireLine{
			ID:     l.ID,
			StartX: int(math.Round(l.StartX)),
			StartY: int(math.Round(l.StartY)),
			EndX:   int(math.Round(l.EndX)),
			EndY:   int(math.Round(l.EndY)),
			Color:  l.Color,
		})
	}
	return types.LinesPayload{
		Lines:       wire,
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
	}
}

// Normalize divides each line by the image size.
func Normalize(lines []types.Line, imageWidth, imageHeight int) []types.NormalizedLine {
	size := geometry.Size{W: float64(imageWidth), H: float64(imageHeight)}
	out := make([]types.NormalizedLine, 0, len(lines))
	for _, l := range lines {
		start := geometry.Normalize(geometry.Point{X: l.StartX, Y: l.StartY}, size)
		end := geometry.Normalize(geometry.Point{X: l.EndX, Y: l.EndY}, size)
		out = append(out, types.NormalizedLine{
			StartX: start.X,
			StartY: start.Y,
			EndX:   end.X,
			EndY:   end.Y,
		})
	}
	return out
}
