package linesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

type stubPusher struct {
	err      error
	calls    int
	feature  types.Feature
	received types.LinesPayload
}

func (s *stubPusher) PostLines(_ context.Context, feature types.Feature, payload types.LinesPayload) error {
	s.calls++
	s.feature = feature
	s.received = payload
	return s.err
}

func TestSyncRoundsPixelsAndCachesNormalized(t *testing.T) {
	pusher := &stubPusher{}
	c := New(types.FeatureCrossline, pusher, nil)

	lines := []types.Line{{ID: 7, StartX: 160, StartY: 120, EndX: 240.6, EndY: 59.4, Color: "#ff0"}}
	res := c.Sync(context.Background(), lines, 320, 240)

	require.True(t, res.Success)
	assert.Equal(t, types.FeatureCrossline, pusher.feature)
	assert.Equal(t, types.LinesPayload{
		Lines:       []types.WireLine{{ID: 7, StartX: 160, StartY: 120, EndX: 241, EndY: 59, Color: "#ff0"}},
		ImageWidth:  320,
		ImageHeight: 240,
	}, pusher.received)

	norm := c.Normalized()
	require.Len(t, norm, 1)
	assert.Equal(t, 0.5, norm[0].StartX)
	assert.Equal(t, 0.5, norm[0].StartY)
	assert.InDelta(t, 240.6/320, norm[0].EndX, 1e-12)
}

func TestSyncFailureKeepsCache(t *testing.T) {
	pusher := &stubPusher{}
	c := New(types.FeaturePipeline, pusher, nil)

	ok := c.Sync(context.Background(), []types.Line{{ID: 1, StartX: 32, StartY: 24, EndX: 32, EndY: 200}}, 320, 240)
	require.True(t, ok.Success)

	pusher.err = errors.New("dial tcp: connection refused")
	res := c.Sync(context.Background(), nil, 320, 240)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, c.Normalized(), 1, "cache reflects the last successful push")
	assert.Equal(t, 2, pusher.calls, "no retry on failure")
}

func TestSyncEmptyListIsSent(t *testing.T) {
	pusher := &stubPusher{}
	c := New(types.FeatureCrossline, pusher, nil)

	res := c.Sync(context.Background(), nil, 640, 480)

	require.True(t, res.Success)
	assert.Equal(t, 1, pusher.calls)
	assert.NotNil(t, pusher.received.Lines)
	assert.Empty(t, pusher.received.Lines)
	assert.Empty(t, c.Normalized())
}

func TestNormalizeZeroSize(t *testing.T) {
	out := Normalize([]types.Line{{StartX: 10, StartY: 10, EndX: 20, EndY: 20}}, 0, 0)
	assert.Equal(t, []types.NormalizedLine{{}}, out)
}
