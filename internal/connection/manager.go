// Package connection tracks whether the appliance is reachable and performs
// camera control writes with retry.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
)

// State is the reachability of the appliance as last observed.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

func (s State) gauge() int64 {
	switch s {
	case Connecting:
		return 1
	case Connected:
		return 2
	}
	return 0
}

const (
	DefaultAttempts       = 3
	DefaultAttemptTimeout = 5 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	backoffStep           = 1000 * time.Millisecond
)

// API is the part of device.Client the manager needs.
type API interface {
	Control(ctx context.Context, key, value string) error
	TestConnection(ctx context.Context) error
}

// Config tunes a Manager. Zero values select defaults.
type Config struct {
	Attempts       int
	AttemptTimeout time.Duration
	ProbeTimeout   time.Duration
	Clock          timeutil.Clock
	Metrics        *metrics.Metrics
}

// Status is the JSON view of the manager.
type Status struct {
	State       State      `json:"state"`
	LastError   string     `json:"lastError,omitempty"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// Manager is safe for concurrent use. Concurrent writes each run their own
// retry loop and the last one to finish decides the reported state.
type Manager struct {
	api     API
	cfg     Config
	clock   timeutil.Clock
	metrics *metrics.Metrics
	log     logger.Module

	mu          sync.Mutex
	state       State
	lastError   string
	lastChecked *time.Time
}

// NewManager returns a manager in the disconnected state.
func NewManager(api API, cfg Config) *Manager {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	m := &Manager{
		api:     api,
		cfg:     cfg,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		log:     logger.For("Connection"),
		state:   Disconnected,
	}
	m.metrics.SetConnectionState(Disconnected.gauge())
	return m
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{State: m.state, LastError: m.lastError}
	if m.lastChecked != nil {
		t := *m.lastChecked
		s.LastChecked = &t
	}
	return s
}

// UpdateConfig sets a camera control variable. Each attempt gets its own
// timeout; after failed attempt n the manager waits n seconds before the
// next one.
func (m *Manager) UpdateConfig(ctx context.Context, key, value string) device.Result {
	m.setState(Connecting, "")

	var err error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		m.metrics.ControlAttempt()

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		err = m.api.Control(attemptCtx, key, value)
		cancel()

		if err == nil {
			m.setState(Connected, "")
			m.log.Debug("control %s=%s applied (attempt %d)", key, value, attempt)
			return device.Result{Success: true}
		}

		m.log.Warn("control %s=%s attempt %d/%d failed: %v", key, value, attempt, m.cfg.Attempts, err)
		if attempt == m.cfg.Attempts {
			break
		}
		if sleepErr := m.clock.Sleep(ctx, time.Duration(attempt)*backoffStep); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	m.metrics.ControlFailure()
	res := device.ResultOf(err)
	m.setState(Disconnected, res.Error)
	return res
}

// TestConnection probes the appliance once. timeout <= 0 uses the configured
// probe timeout.
func (m *Manager) TestConnection(ctx context.Context, timeout time.Duration) device.Result {
	if timeout <= 0 {
		timeout = m.cfg.ProbeTimeout
	}
	m.setState(Connecting, "")

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := device.ResultOf(m.api.TestConnection(probeCtx))
	if res.Success {
		m.setState(Connected, "")
	} else {
		m.log.Info("connection test failed: %s", res.Error)
		m.setState(Disconnected, res.Error)
	}
	return res
}

// Observe records the outcome of some other appliance call, so that the
// indicator follows proxied traffic too.
func (m *Manager) Observe(err error) {
	if err == nil {
		m.setState(Connected, "")
		return
	}
	m.setState(Disconnected, device.Describe(err))
}

func (m *Manager) setState(state State, lastError string) {
	now := m.clock.Now()

	m.mu.Lock()
	prev := m.state
	m.state = state
	if state != Connecting {
		m.lastError = lastError
		m.lastChecked = &now
	}
	m.mu.Unlock()

	m.metrics.SetConnectionState(state.gauge())
	if prev != state && state != Connecting {
		m.log.Info("appliance %s", state)
	}
}
