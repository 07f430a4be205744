package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// ServiceAPI is everything the service needs from the appliance.
type ServiceAPI interface {
	API
	SetMotionSensitivity(ctx context.Context, s device.Sensitivity) error
}

// ServiceConfig tunes a Service. Zero values select defaults.
type ServiceConfig struct {
	Clock          timeutil.Clock
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Service owns the store, one Pollable per feature and their pollers.
type Service struct {
	api      ServiceAPI
	store    *Store
	variants map[types.Feature]Pollable
	pollers  map[types.Feature]*Poller
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      logger.Module

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	sensitivity *device.Sensitivity
}

// NewService builds the detection service. Pollers are created stopped.
func NewService(api ServiceAPI, cfg ServiceConfig) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		api:      api,
		store:    NewStore(),
		variants: make(map[types.Feature]Pollable, len(types.Features)),
		pollers:  make(map[types.Feature]*Poller, len(types.Features)),
		timeout:  cfg.RequestTimeout,
		metrics:  cfg.Metrics,
		log:      logger.For("Detection"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, f := range types.Features {
		v, _ := NewPollable(f, api)
		s.variants[f] = v
		p := NewPoller(v, s.store, cfg.Clock, cfg.PollInterval, cfg.Metrics)
		p.timeout = cfg.RequestTimeout
		s.pollers[f] = p
	}
	return s
}

// Store returns the backing store.
func (s *Service) Store() *Store {
	return s.store
}

// Toggle optimistically sets enabled, POSTs it, and reverts on failure.
func (s *Service) Toggle(ctx context.Context, feature types.Feature, enabled bool) (State, device.Result, error) {
	v, ok := s.variants[feature]
	if !ok {
		return State{}, device.Result{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	t, _, err := s.store.BeginToggle(feature, enabled)
	if err != nil {
		return State{}, device.Result{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = v.SetEnabled(reqCtx, enabled)
	cancel()

	res := device.ResultOf(err)
	s.metrics.Toggle(string(feature), err == nil)
	if err != nil {
		s.log.Warn("%s: set enabled=%v failed, reverting: %v", feature, enabled, err)
		return t.Revert(), res, nil
	}
	s.log.Info("%s: detection %s", feature, enabledWord(enabled))
	return t.Confirm(), res, nil
}

// Expand starts polling feature and marks its panel open.
func (s *Service) Expand(feature types.Feature) (State, error) {
	p, ok := s.pollers[feature]
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	p.Start(s.ctx)
	return s.store.Update(feature, func(cur State) State {
		cur.Expanded = true
		return cur
	})
}

// Collapse stops polling feature and marks its panel closed.
func (s *Service) Collapse(feature types.Feature) (State, error) {
	p, ok := s.pollers[feature]
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	p.Stop()
	return s.store.Update(feature, func(cur State) State {
		cur.Expanded = false
		return cur
	})
}

// SetStreaming records whether the feature's MJPEG view is shown. It is
// local state only.
func (s *Service) SetStreaming(feature types.Feature, streaming bool) (State, error) {
	return s.store.Update(feature, func(cur State) State {
		cur.Streaming = streaming
		return cur
	})
}

// SetMotionSensitivity pushes new thresholds once, without retry.
func (s *Service) SetMotionSensitivity(ctx context.Context, sens device.Sensitivity) device.Result {
	if sens.MotionThreshold < 0 || sens.AlarmThreshold < 0 {
		return device.Result{Success: false, Error: "thresholds must not be negative"}
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.api.SetMotionSensitivity(reqCtx, sens); err != nil {
		s.log.Warn("motion sensitivity update failed: %v", err)
		return device.ResultOf(err)
	}
	s.mu.Lock()
	s.sensitivity = &sens
	s.mu.Unlock()
	return device.Result{Success: true}
}

// MotionSensitivity returns the last thresholds the appliance accepted.
func (s *Service) MotionSensitivity() (device.Sensitivity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensitivity == nil {
		return device.Sensitivity{}, false
	}
	return *s.sensitivity, true
}

// Close stops every poller.
func (s *Service) Close() {
	for _, p := range s.pollers {
		p.Stop()
	}
	s.cancel()
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
