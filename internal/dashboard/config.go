package dashboard

import (
	"path/filepath"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
)

// Config defines the runtime configuration for the dashboard server.
type Config struct {
	Addr            string
	DeviceURL       string
	StreamHost      string // empty: stream from DeviceURL
	AssetsDir       string
	BuildAssetsDir  string
	UsersFile       string
	SessionDB       string
	PublicURL       string // encoded in /api/qr.png; empty: derived from the request
	MetricsAddr     string // separate listener; empty: /metrics on the main mux only
	PollInterval    time.Duration
	ControlTimeout  time.Duration
	ControlAttempts int
	ProbeTimeout    time.Duration
	ProxyTimeout    time.Duration

	// Clock drives line ids, backoff waits and poll tickers. Nil means real time.
	Clock timeutil.Clock
}

// DefaultConfig returns a config for an appliance in its default AP mode.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		DeviceURL:       "http://192.168.4.1",
		AssetsDir:       filepath.Clean("./web_assets"),
		BuildAssetsDir:  filepath.Clean("./build/web"),
		UsersFile:       filepath.Clean("./user.json"),
		SessionDB:       filepath.Clean("./dashboard-session.db"),
		PollInterval:    1000 * time.Millisecond,
		ControlTimeout:  5 * time.Second,
		ControlAttempts: 3,
		ProbeTimeout:    5 * time.Second,
		ProxyTimeout:    5 * time.Second,
	}
}

// withDefaults fills zero durations and counts from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = d.ControlTimeout
	}
	if c.ControlAttempts <= 0 {
		c.ControlAttempts = d.ControlAttempts
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = d.ProxyTimeout
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c
}
