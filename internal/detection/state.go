// Package detection tracks the appliance's four detection pipelines.
//
// Each feature is polled while its panel is expanded. Poll results are merged
// into the local state field by field; a result that changes nothing leaves
// the state untouched and emits no update. Toggling a feature is a two-phase
// transition: tentative, then confirmed or reverted.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// ErrUnknownFeature is returned for a feature name the store does not track.
var ErrUnknownFeature = errors.New("unknown detection feature")

const statusDisabled = "Disabled"

// Details is the feature-specific part of a detection state.
type Details interface {
	Feature() types.Feature
	// ActiveLabel is the status shown while the feature is enabled.
	ActiveLabel(lastDetection *string) string
	Equal(other Details) bool
}

// MotionDetails carries nothing beyond lastDetection.
type MotionDetails struct{}

func (MotionDetails) Feature() types.Feature { return types.FeatureMotion }

func (MotionDetails) ActiveLabel(lastDetection *string) string {
	if lastDetection != nil {
		return "Active - Motion Detected"
	}
	return "Active - Monitoring"
}

func (d MotionDetails) Equal(other Details) bool {
	_, ok := other.(MotionDetails)
	return ok
}

// FaceDetails is the face recognizer's result.
type FaceDetails struct {
	FaceCount int      `json:"faceCount"`
	FaceNames []string `json:"faceNames"`
}

func (FaceDetails) Feature() types.Feature { return types.FeatureFace }

func (d FaceDetails) ActiveLabel(*string) string {
	if d.FaceCount > 0 {
		return fmt.Sprintf("Active - %d Face(s) Detected", d.FaceCount)
	}
	return "Active - Scanning"
}

func (d FaceDetails) Equal(other Details) bool {
	o, ok := other.(FaceDetails)
	return ok && d.FaceCount == o.FaceCount && slices.Equal(d.FaceNames, o.FaceNames)
}

// CrosslineDetails is the line-crossing tracker's result.
type CrosslineDetails struct {
	CrossingEvent *string  `json:"crossingEvent"`
	PersonCount   int      `json:"personCount"`
	PersonNames   []string `json:"personNames"`
}

func (CrosslineDetails) Feature() types.Feature { return types.FeatureCrossline }

func (d CrosslineDetails) ActiveLabel(*string) string {
	if d.PersonCount > 0 {
		return fmt.Sprintf("Active - %d Person(s) Tracked", d.PersonCount)
	}
	return "Active - Watching Lines"
}

func (d CrosslineDetails) Equal(other Details) bool {
	o, ok := other.(CrosslineDetails)
	return ok && equalString(d.CrossingEvent, o.CrossingEvent) &&
		d.PersonCount == o.PersonCount && slices.Equal(d.PersonNames, o.PersonNames)
}

// PipelineDetails is the room-occupancy pipeline's result.
type PipelineDetails struct {
	PersonInRoom bool     `json:"personInRoom"`
	PersonCount  int      `json:"personCount"`
	PersonNames  []string `json:"personNames"`
}

func (PipelineDetails) Feature() types.Feature { return types.FeaturePipeline }

func (d PipelineDetails) ActiveLabel(*string) string {
	if d.PersonInRoom || d.PersonCount > 0 {
		return fmt.Sprintf("Active - %d Person(s) in Room", d.PersonCount)
	}
	return "Active - Room Empty"
}

func (d PipelineDetails) Equal(other Details) bool {
	o, ok := other.(PipelineDetails)
	return ok && d.PersonInRoom == o.PersonInRoom &&
		d.PersonCount == o.PersonCount && slices.Equal(d.PersonNames, o.PersonNames)
}

// EmptyDetails returns the zero details for feature.
func EmptyDetails(feature types.Feature) (Details, error) {
	switch feature {
	case types.FeatureMotion:
		return MotionDetails{}, nil
	case types.FeatureFace:
		return FaceDetails{FaceNames: []string{}}, nil
	case types.FeatureCrossline:
		return CrosslineDetails{PersonNames: []string{}}, nil
	case types.FeaturePipeline:
		return PipelineDetails{PersonNames: []string{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
}

// State is the dashboard's view of one detection feature.
type State struct {
	Feature       types.Feature `json:"feature"`
	Enabled       bool          `json:"enabled"`
	Status        string        `json:"status"`
	Streaming     bool          `json:"streaming"`
	Expanded      bool          `json:"expanded"`
	Pending       bool          `json:"pending"` // a toggle is awaiting the appliance
	LastDetection *string       `json:"lastDetection"`
	Details       Details       `json:"details"`
}

// NewState returns the disabled default state for feature.
func NewState(feature types.Feature) (State, error) {
	details, err := EmptyDetails(feature)
	if err != nil {
		return State{}, err
	}
	s := State{Feature: feature, Details: details}
	s.Status = StatusLabel(s)
	return s, nil
}

// StatusLabel derives the status string from enabled, lastDetection and
// details.
func StatusLabel(s State) string {
	if !s.Enabled {
		return statusDisabled
	}
	if s.Details == nil {
		return "Active"
	}
	return s.Details.ActiveLabel(s.LastDetection)
}

// Info is one parsed GET /{feature}/info response. Enabled is nil when the
// appliance did not report it.
type Info struct {
	Enabled       *bool
	LastDetection *string
	Details       Details
}

// Merge folds info into current. When every compared field is equal it
// returns current unchanged and false. Otherwise only the differing fields
// are overwritten and the status label is recomputed.
func Merge(current State, info Info) (State, bool) {
	next := current
	changed := false

	if info.Enabled != nil && *info.Enabled != current.Enabled {
		next.Enabled = *info.Enabled
		changed = true
	}
	if !equalString(info.LastDetection, current.LastDetection) {
		next.LastDetection = info.LastDetection
		changed = true
	}
	if info.Details != nil && (current.Details == nil || !info.Details.Equal(current.Details)) {
		next.Details = info.Details
		changed = true
	}

	if !changed {
		return current, false
	}
	next.Status = StatusLabel(next)
	return next, true
}

// ParseInfo decodes an info document for feature. Fields that are missing or
// have the wrong type keep their zero value.
func ParseInfo(feature types.Feature, raw []byte) (Info, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Info{}, fmt.Errorf("%s info: %w", feature, err)
	}

	var info Info
	var enabled bool
	if decodeField(fields, "enabled", &enabled) {
		info.Enabled = &enabled
	}
	info.LastDetection = optionalString(fields, "lastDetection")

	switch feature {
	case types.FeatureMotion:
		info.Details = MotionDetails{}
	case types.FeatureFace:
		d := FaceDetails{FaceNames: []string{}}
		decodeField(fields, "faceCount", &d.FaceCount)
		decodeField(fields, "faceNames", &d.FaceNames)
		info.Details = d
	case types.FeatureCrossline:
		d := CrosslineDetails{PersonNames: []string{}}
		d.CrossingEvent = optionalString(fields, "crossingEvent")
		decodeField(fields, "personCount", &d.PersonCount)
		decodeField(fields, "personNames", &d.PersonNames)
		info.Details = d
	case types.FeaturePipeline:
		d := PipelineDetails{PersonNames: []string{}}
		decodeField(fields, "personInRoom", &d.PersonInRoom)
		decodeField(fields, "personCount", &d.PersonCount)
		decodeField(fields, "personNames", &d.PersonNames)
		info.Details = d
	default:
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	return info, nil
}

// decodeField decodes fields[key] into dst and reports whether it was present
// and well-formed. dst is left alone otherwise.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) bool {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// optionalString reads a nullable string. Numbers are kept as their text so a
// timestamp sent as epoch seconds still registers as a detection.
func optionalString(fields map[string]json.RawMessage, key string) *string {
	var s string
	if decodeField(fields, key, &s) {
		return &s
	}
	var n json.Number
	if decodeField(fields, key, &n) {
		s = n.String()
		return &s
	}
	return nil
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
