package detection

import (
	"context"
	"encoding/json"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// API is the part of device.Client the detection features use.
type API interface {
	Info(ctx context.Context, feature types.Feature) (json.RawMessage, error)
	SetDetection(ctx context.Context, feature types.Feature, enabled bool) error
}

// Pollable is the capability every detection feature shares.
type Pollable interface {
	Feature() types.Feature
	FetchInfo(ctx context.Context) (Info, error)
	SetEnabled(ctx context.Context, enabled bool) error
	StatusLabel(s State) string
}

// variant implements Pollable for one feature. The features differ only in
// the shape of their details, which ParseInfo and Details handle.
type variant struct {
	feature types.Feature
	api     API
}

// NewPollable returns the Pollable for feature.
func NewPollable(feature types.Feature, api API) (Pollable, error) {
	if _, err := EmptyDetails(feature); err != nil {
		return nil, err
	}
	return &variant{feature: feature, api: api}, nil
}

func (v *variant) Feature() types.Feature {
	return v.feature
}

func (v *variant) FetchInfo(ctx context.Context) (Info, error) {
	raw, err := v.api.Info(ctx, v.feature)
	if err != nil {
		return Info{}, err
	}
	return ParseInfo(v.feature, raw)
}

func (v *variant) SetEnabled(ctx context.Context, enabled bool) error {
	return v.api.SetDetection(ctx, v.feature, enabled)
}

func (v *variant) StatusLabel(s State) string {
	return StatusLabel(s)
}
