package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestMergeIdenticalResultIsNoop(t *testing.T) {
	current, err := NewState(types.FeatureMotion)
	require.NoError(t, err)
	current.LastDetection = strPtr("A")

	next, changed := Merge(current, Info{Enabled: boolPtr(false), LastDetection: strPtr("A"), Details: MotionDetails{}})

	assert.False(t, changed)
	assert.Same(t, current.LastDetection, next.LastDetection, "unchanged state is returned as is")
	assert.Equal(t, current, next)
}

func TestMergeUpdatesOnlyChangedField(t *testing.T) {
	current, _ := NewState(types.FeatureMotion)
	current.Enabled = true
	current.LastDetection = strPtr("A")
	current.Status = StatusLabel(current)
	current.Streaming = true

	next, changed := Merge(current, Info{Enabled: boolPtr(true), LastDetection: strPtr("B"), Details: MotionDetails{}})

	require.True(t, changed)
	assert.Equal(t, "B", *next.LastDetection)
	assert.True(t, next.Enabled)
	assert.True(t, next.Streaming, "local-only fields survive")
	assert.Equal(t, "Active - Motion Detected", next.Status)
}

func TestMergeDisabledDetectionKeepsDisabledLabel(t *testing.T) {
	current, _ := NewState(types.FeatureMotion)
	current.LastDetection = strPtr("A")

	next, changed := Merge(current, Info{Enabled: boolPtr(false), LastDetection: strPtr("B")})

	require.True(t, changed)
	assert.Equal(t, "B", *next.LastDetection)
	assert.False(t, next.Enabled)
	assert.Equal(t, "Disabled", next.Status)
}

func TestMergeMissingEnabledKeepsLocalValue(t *testing.T) {
	current, _ := NewState(types.FeatureFace)
	current.Enabled = true

	next, changed := Merge(current, Info{Details: FaceDetails{FaceCount: 2, FaceNames: []string{"a", "b"}}})

	require.True(t, changed)
	assert.True(t, next.Enabled)
	assert.Equal(t, "Active - 2 Face(s) Detected", next.Status)
}

func TestMergeTreatsNilAndEmptyNamesAlike(t *testing.T) {
	current, _ := NewState(types.FeatureCrossline)

	_, changed := Merge(current, Info{Details: CrosslineDetails{}})

	assert.False(t, changed)
}

func TestStatusLabels(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"disabled", State{Enabled: false, Details: FaceDetails{FaceCount: 3}}, "Disabled"},
		{"face scanning", State{Enabled: true, Details: FaceDetails{}}, "Active - Scanning"},
		{"face detected", State{Enabled: true, Details: FaceDetails{FaceCount: 1}}, "Active - 1 Face(s) Detected"},
		{"motion monitoring", State{Enabled: true, Details: MotionDetails{}}, "Active - Monitoring"},
		{"motion detected", State{Enabled: true, LastDetection: strPtr("12:00"), Details: MotionDetails{}}, "Active - Motion Detected"},
		{"crossline watching", State{Enabled: true, Details: CrosslineDetails{}}, "Active - Watching Lines"},
		{"crossline tracked", State{Enabled: true, Details: CrosslineDetails{PersonCount: 2}}, "Active - 2 Person(s) Tracked"},
		{"pipeline empty", State{Enabled: true, Details: PipelineDetails{}}, "Active - Room Empty"},
		{"pipeline occupied", State{Enabled: true, Details: PipelineDetails{PersonInRoom: true, PersonCount: 1}}, "Active - 1 Person(s) in Room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLabel(tt.state))
		})
	}
}

func TestParseInfo(t *testing.T) {
	t.Run("face", func(t *testing.T) {
		info, err := ParseInfo(types.FeatureFace, []byte(`{"enabled":true,"lastDetection":"2024-01-01T00:00:00","faceCount":1,"faceNames":["alice"]}`))
		require.NoError(t, err)
		require.NotNil(t, info.Enabled)
		assert.True(t, *info.Enabled)
		assert.Equal(t, "2024-01-01T00:00:00", *info.LastDetection)
		assert.Equal(t, FaceDetails{FaceCount: 1, FaceNames: []string{"alice"}}, info.Details)
	})

	t.Run("crossline with null event", func(t *testing.T) {
		info, err := ParseInfo(types.FeatureCrossline, []byte(`{"crossingEvent":null,"personCount":2,"personNames":["a","b"]}`))
		require.NoError(t, err)
		assert.Nil(t, info.Enabled)
		assert.Equal(t, CrosslineDetails{PersonCount: 2, PersonNames: []string{"a", "b"}}, info.Details)
	})

	t.Run("pipeline malformed fields default", func(t *testing.T) {
		info, err := ParseInfo(types.FeaturePipeline, []byte(`{"personInRoom":"yes","personCount":"many","personNames":null}`))
		require.NoError(t, err)
		assert.Equal(t, PipelineDetails{PersonNames: []string{}}, info.Details)
	})

	t.Run("numeric lastDetection", func(t *testing.T) {
		info, err := ParseInfo(types.FeatureMotion, []byte(`{"enabled":false,"lastDetection":1700000000}`))
		require.NoError(t, err)
		require.NotNil(t, info.LastDetection)
		assert.Equal(t, "1700000000", *info.LastDetection)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ParseInfo(types.FeatureMotion, []byte(`[1,2]`))
		assert.Error(t, err)
	})

	t.Run("unknown feature", func(t *testing.T) {
		_, err := ParseInfo(types.Feature("sound"), []byte(`{}`))
		assert.ErrorIs(t, err, ErrUnknownFeature)
	})
}
