package types

import "fmt"

// Feature names one of the appliance's detection pipelines.
type Feature string

const (
	FeatureMotion    Feature = "motion"
	FeatureFace      Feature = "face"
	FeatureCrossline Feature = "crossline"
	FeaturePipeline  Feature = "pipeline"
)

// Features lists every feature in display order.
var Features = []Feature{FeatureMotion, FeatureFace, FeatureCrossline, FeaturePipeline}

// ParseFeature validates a feature name taken from a URL or request body.
func ParseFeature(s string) (Feature, error) {
	for _, f := range Features {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown detection feature %q", s)
}

// HasLineEditor reports whether the dashboard exposes a trip-line editor
// for the feature.
func (f Feature) HasLineEditor() bool {
	return f == FeatureCrossline || f == FeaturePipeline
}
