package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all dashboard metrics. A nil *Metrics is valid and records
// nothing, so components can be built without one in tests.
type Metrics struct {
	// Appliance traffic
	proxyRequests   *prometheus.CounterVec
	controlAttempts prometheus.Counter
	controlFailures prometheus.Counter

	// Detection polling
	pollTicks   *prometheus.CounterVec
	pollChanges *prometheus.CounterVec
	pollErrors  *prometheus.CounterVec
	pollStale   *prometheus.CounterVec
	toggles     *prometheus.CounterVec

	// Trip-line sync
	lineSyncs *prometheus.CounterVec

	// Live gauges
	SSEClients      atomic.Int64
	ConnectionState atomic.Int64 // 0 = disconnected, 1 = connecting, 2 = connected
	ActivePollers   atomic.Int64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.proxyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_proxy_requests_total",
		Help: "Requests forwarded to the appliance by route and outcome",
	}, []string{"route", "outcome"})

	m.controlAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_control_attempts_total",
		Help: "Individual /control attempts including retries",
	})

	m.controlFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_control_failures_total",
		Help: "Control writes that failed after every attempt",
	})

	m.pollTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_poll_ticks_total",
		Help: "Detection info polls issued",
	}, []string{"feature"})

	m.pollChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_poll_changes_total",
		Help: "Polls that changed detection state",
	}, []string{"feature"})

	m.pollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_poll_errors_total",
		Help: "Polls that failed and were skipped",
	}, []string{"feature"})

	m.pollStale = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_poll_stale_total",
		Help: "Poll results discarded because the poller was stopped",
	}, []string{"feature"})

	m.toggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_detection_toggles_total",
		Help: "Detection enable/disable requests by outcome (confirmed, reverted)",
	}, []string{"feature", "outcome"})

	m.lineSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_line_syncs_total",
		Help: "Trip-line pushes by outcome",
	}, []string{"feature", "outcome"})

	m.registry.MustRegister(
		m.proxyRequests,
		m.controlAttempts,
		m.controlFailures,
		m.pollTicks,
		m.pollChanges,
		m.pollErrors,
		m.pollStale,
		m.toggles,
		m.lineSyncs,
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dashboard_sse_clients",
			Help: "Connected detection-state SSE clients",
		},
		func() float64 { return float64(m.SSEClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dashboard_connection_state",
			Help: "Appliance connection state (0=disconnected, 1=connecting, 2=connected)",
		},
		func() float64 { return float64(m.ConnectionState.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dashboard_active_pollers",
			Help: "Detection panels currently being polled",
		},
		func() float64 { return float64(m.ActivePollers.Load()) },
	))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ProxyRequest counts one proxied appliance request.
func (m *Metrics) ProxyRequest(route string, ok bool) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(route, outcome(ok)).Inc()
}

// ControlAttempt counts one /control attempt.
func (m *Metrics) ControlAttempt() {
	if m == nil {
		return
	}
	m.controlAttempts.Inc()
}

// ControlFailure counts a control write that exhausted its retries.
func (m *Metrics) ControlFailure() {
	if m == nil {
		return
	}
	m.controlFailures.Inc()
}

// PollTick counts a poll and its effect: changed state, error, or neither.
func (m *Metrics) PollTick(feature string, changed bool, err error) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(feature).Inc()
	switch {
	case err != nil:
		m.pollErrors.WithLabelValues(feature).Inc()
	case changed:
		m.pollChanges.WithLabelValues(feature).Inc()
	}
}

// PollStale counts a poll result dropped after its poller stopped.
func (m *Metrics) PollStale(feature string) {
	if m == nil {
		return
	}
	m.pollStale.WithLabelValues(feature).Inc()
}

// Toggle counts a detection toggle that was confirmed or reverted.
func (m *Metrics) Toggle(feature string, confirmed bool) {
	if m == nil {
		return
	}
	result := "confirmed"
	if !confirmed {
		result = "reverted"
	}
	m.toggles.WithLabelValues(feature, result).Inc()
}

// LineSync counts one trip-line push.
func (m *Metrics) LineSync(feature string, ok bool) {
	if m == nil {
		return
	}
	m.lineSyncs.WithLabelValues(feature, outcome(ok)).Inc()
}

// SetConnectionState records the connection gauge.
func (m *Metrics) SetConnectionState(v int64) {
	if m == nil {
		return
	}
	m.ConnectionState.Store(v)
}

// AddActivePollers adjusts the active poller gauge.
func (m *Metrics) AddActivePollers(delta int64) {
	if m == nil {
		return
	}
	m.ActivePollers.Add(delta)
}

// AddSSEClients adjusts the SSE client gauge.
func (m *Metrics) AddSSEClients(delta int64) {
	if m == nil {
		return
	}
	m.SSEClients.Add(delta)
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on its own listener.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
