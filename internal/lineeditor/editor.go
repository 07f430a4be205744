// Package lineeditor holds one feature's trip-lines and the pointer state
// machine used to drag their endpoints over the live video.
//
// Pointer positions arrive in canvas (screen) pixels and are mapped into
// natural image pixels with the current geometry.Transform. Lines are always
// stored in image pixels.
package lineeditor

import (
	"context"
	"sync"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/geometry"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

const (
	// Margin keeps new lines off the top and bottom image edges (image px).
	Margin = 20.0
	// HitTolerance is the grab radius around an endpoint in screen px.
	HitTolerance = 15.0
)

// Endpoint selects one end of a line.
type Endpoint string

const (
	Start Endpoint = "start"
	End   Endpoint = "end"
)

// Target identifies a line endpoint.
type Target struct {
	LineID   int64    `json:"lineId"`
	Endpoint Endpoint `json:"endpoint"`
}

// Syncer pushes the line set to the appliance.
type Syncer interface {
	Sync(ctx context.Context, lines []types.Line, imageWidth, imageHeight int) device.Result
	Normalized() []types.NormalizedLine
}

// View is a snapshot of the editor for rendering.
type View struct {
	Feature    types.Feature          `json:"feature"`
	Enabled    bool                   `json:"enabled"`
	ImageSize  geometry.Size          `json:"imageSize"`
	Transform  geometry.Transform     `json:"transform"`
	Lines      []types.Line           `json:"lines"`
	Normalized []types.NormalizedLine `json:"normalized"`
	Drag       *Target                `json:"drag"`
	Hover      *Target                `json:"hover"`
	Dragging   bool                   `json:"dragging"`
	Readout    *geometry.Point        `json:"readout"` // image-space pointer position
	Cursor     string                 `json:"cursor"`
	Revision   uint64                 `json:"revision"`
	LastSync   *device.Result         `json:"lastSync,omitempty"`
}

// Editor owns the line set for a single feature. It is safe for concurrent
// use; network pushes happen outside the lock.
type Editor struct {
	feature types.Feature
	palette Palette
	syncer  Syncer
	clock   timeutil.Clock
	log     logger.Module

	mu        sync.Mutex
	enabled   bool
	lines     []types.Line
	lastID    int64
	natural   geometry.Size
	display   geometry.Size
	canvas    geometry.Size
	transform geometry.Transform
	drag      *Target
	hover     *Target
	readout   *geometry.Point
	revision  uint64
	lastSync  *device.Result
}

// New creates an editor. clock may be nil.
func New(feature types.Feature, syncer Syncer, clock timeutil.Clock) *Editor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Editor{
		feature:   feature,
		palette:   PaletteFor(feature),
		syncer:    syncer,
		clock:     clock,
		log:       logger.For("LineEditor"),
		lines:     []types.Line{},
		transform: geometry.Identity(),
	}
}

// Feature returns the feature this editor belongs to.
func (e *Editor) Feature() types.Feature {
	return e.feature
}

// SetEnabled mirrors the feature's detection state into the editor.
func (e *Editor) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled == enabled {
		return
	}
	e.enabled = enabled
	if !enabled {
		e.drag = nil
		e.hover = nil
	}
	e.revision++
}

// SetImageSize records the natural size of the video frame.
func (e *Editor) SetImageSize(natural geometry.Size) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.natural = natural
	e.recomputeLocked()
}

// SetViewport records the image's displayed size and the canvas bounding box.
func (e *Editor) SetViewport(display, canvas geometry.Size) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.display = display
	e.canvas = canvas
	e.recomputeLocked()
}

func (e *Editor) recomputeLocked() {
	display := e.display
	if !display.Valid() {
		display = e.natural
	}
	canvas := e.canvas
	if !canvas.Valid() {
		canvas = display
	}
	e.transform = geometry.NewTransform(e.natural, display, canvas)
	e.revision++
}

// AddLine appends a vertical line through the middle of the image and pushes
// the new set. It does nothing while the feature is disabled or before the
// image size is known.
func (e *Editor) AddLine(ctx context.Context) (device.Result, bool) {
	e.mu.Lock()
	if !e.enabled || !e.natural.Valid() {
		e.mu.Unlock()
		return device.Result{}, false
	}

	id := e.clock.Now().UnixMilli()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id

	x := e.natural.W / 2
	e.lines = append(e.lines, types.Line{
		ID:     id,
		StartX: x,
		StartY: Margin,
		EndX:   x,
		EndY:   e.natural.H - Margin,
		Color:  e.palette.StrokeHex,
	})
	e.revision++
	lines, w, h := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Debug("%s: added line %d", e.feature, id)
	return e.push(ctx, lines, w, h), true
}

// ClearLines removes every line and pushes the empty set, even when the set
// was already empty.
func (e *Editor) ClearLines(ctx context.Context) device.Result {
	e.mu.Lock()
	e.lines = []types.Line{}
	e.drag = nil
	e.hover = nil
	e.revision++
	lines, w, h := e.snapshotLocked()
	e.mu.Unlock()

	return e.push(ctx, lines, w, h)
}

// HitTest returns the first endpoint within tolerance of p (image space).
func (e *Editor) HitTest(p geometry.Point) *Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hitTestLocked(p)
}

// hitTestLocked walks lines in insertion order and checks start before end,
// so the oldest line wins when endpoints overlap.
func (e *Editor) hitTestLocked(p geometry.Point) *Target {
	tolerance := e.transform.ImageTolerance(HitTolerance)
	for _, l := range e.lines {
		if geometry.Distance(p, geometry.Point{X: l.StartX, Y: l.StartY}) < tolerance {
			return &Target{LineID: l.ID, Endpoint: Start}
		}
		if geometry.Distance(p, geometry.Point{X: l.EndX, Y: l.EndY}) < tolerance {
			return &Target{LineID: l.ID, Endpoint: End}
		}
	}
	return nil
}

// PointerDown starts a drag when screen lands on an endpoint. It reports
// whether a drag started.
func (e *Editor) PointerDown(screen geometry.Point) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false
	}
	target := e.hitTestLocked(e.transform.ToImage(screen))
	if target == nil {
		return false
	}
	e.drag = target
	e.hover = target
	e.revision++
	return true
}

// PointerMove drags the active endpoint, or updates hover when idle.
func (e *Editor) PointerMove(screen geometry.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.transform.ToImage(screen)

	if e.drag != nil {
		p = geometry.Clamp(p, e.natural)
		for i := range e.lines {
			if e.lines[i].ID != e.drag.LineID {
				continue
			}
			if e.drag.Endpoint == Start {
				e.lines[i].StartX, e.lines[i].StartY = p.X, p.Y
			} else {
				e.lines[i].EndX, e.lines[i].EndY = p.X, p.Y
			}
			break
		}
		e.readout = &p
		e.revision++
		return
	}

	e.readout = &p
	hover := e.hitTestLocked(p)
	if !sameTarget(hover, e.hover) {
		e.hover = hover
		e.revision++
	}
}

// PointerUp ends a drag. When a drag was in progress the final set is
// pushed and its result returned; otherwise the result is nil.
func (e *Editor) PointerUp(ctx context.Context) *device.Result {
	return e.release(ctx, false)
}

// PointerLeave is PointerUp that also clears hover and the readout.
func (e *Editor) PointerLeave(ctx context.Context) *device.Result {
	return e.release(ctx, true)
}

func (e *Editor) release(ctx context.Context, leave bool) *device.Result {
	e.mu.Lock()
	wasDragging := e.drag != nil
	e.drag = nil
	if leave {
		e.hover = nil
		e.readout = nil
	}
	e.revision++
	lines, w, h := e.snapshotLocked()
	e.mu.Unlock()

	if !wasDragging {
		return nil
	}
	res := e.push(ctx, lines, w, h)
	return &res
}

// Lines returns a copy of the current line set.
func (e *Editor) Lines() []types.Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines, _, _ := e.snapshotLocked()
	return lines
}

// View returns a snapshot for the UI.
func (e *Editor) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines, _, _ := e.snapshotLocked()
	v := View{
		Feature:   e.feature,
		Enabled:   e.enabled,
		ImageSize: e.natural,
		Transform: e.transform,
		Lines:     lines,
		Drag:      copyTarget(e.drag),
		Hover:     copyTarget(e.hover),
		Dragging:  e.drag != nil,
		Cursor:    e.cursorLocked(),
		Revision:  e.revision,
	}
	if e.readout != nil {
		r := *e.readout
		v.Readout = &r
	}
	if e.lastSync != nil {
		s := *e.lastSync
		v.LastSync = &s
	}
	if e.syncer != nil {
		v.Normalized = e.syncer.Normalized()
	}
	return v
}

func (e *Editor) cursorLocked() string {
	switch {
	case e.drag != nil:
		return "grabbing"
	case e.hover != nil && e.enabled:
		return "grab"
	default:
		return "crosshair"
	}
}

func (e *Editor) snapshotLocked() ([]types.Line, int, int) {
	lines := make([]types.Line, len(e.lines))
	copy(lines, e.lines)
	return lines, int(e.natural.W + 0.5), int(e.natural.H + 0.5)
}

func (e *Editor) push(ctx context.Context, lines []types.Line, w, h int) device.Result {
	if e.syncer == nil {
		return device.Result{Success: true}
	}
	res := e.syncer.Sync(ctx, lines, w, h)

	e.mu.Lock()
	e.lastSync = &res
	e.mu.Unlock()
	return res
}

func sameTarget(a, b *Target) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyTarget(t *Target) *Target {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
