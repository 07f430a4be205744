package detection

import (
	"context"
	"sync"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
)

const (
	DefaultPollInterval = 1000 * time.Millisecond
	defaultFetchTimeout = 5 * time.Second
)

// Poller fetches one feature's info on a fixed interval while started.
//
// Every tick fetches in its own goroutine, so a slow appliance produces
// overlapping requests. Stop bumps a generation counter; results from an
// older generation are dropped when they arrive.
type Poller struct {
	variant  Pollable
	store    *Store
	clock    timeutil.Clock
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      logger.Module

	mu      sync.Mutex
	gen     uint64
	running bool
	stop    chan struct{}
	done    chan struct{} // closed when the current run loop returns
}

// NewPoller returns a stopped poller. clock and m may be nil; a zero interval
// means DefaultPollInterval.
func NewPoller(variant Pollable, store *Store, clock timeutil.Clock, interval time.Duration, m *metrics.Metrics) *Poller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		variant:  variant,
		store:    store,
		clock:    clock,
		interval: interval,
		timeout:  defaultFetchTimeout,
		metrics:  m,
		log:      logger.For("Poller"),
	}
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins polling. The first fetch is issued immediately. ctx bounds
// every fetch for the poller's lifetime; Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.gen++
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.metrics.AddActivePollers(1)

	gen := p.gen
	ticker := p.clock.NewTicker(p.interval)
	go p.run(ctx, gen, ticker, p.stop, p.done)

	p.log.Debug("%s: polling every %v", p.variant.Feature(), p.interval)
}

// Stop halts the ticker and waits for the loop it stopped. In-flight fetches
// are not aborted, but their results are discarded. A Start racing with Stop
// gets its own loop and is not waited on here.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.running = false
	close(p.stop)
	done := p.done
	p.metrics.AddActivePollers(-1)
	p.mu.Unlock()

	<-done
	p.log.Debug("%s: polling stopped", p.variant.Feature())
}

func (p *Poller) run(ctx context.Context, gen uint64, ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	go p.pollOnce(ctx, gen)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			go p.pollOnce(ctx, gen)
		}
	}
}

func (p *Poller) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}

// pollOnce fetches and merges one result for generation gen. It reports
// whether the store changed.
func (p *Poller) pollOnce(ctx context.Context, gen uint64) bool {
	feature := string(p.variant.Feature())

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	info, err := p.variant.FetchInfo(fetchCtx)
	cancel()

	if !p.current(gen) {
		p.metrics.PollStale(feature)
		p.log.Debug("%s: dropped result from stopped poll", feature)
		return false
	}
	if err != nil {
		p.metrics.PollTick(feature, false, err)
		p.log.Debug("%s: info fetch failed: %v", feature, err)
		return false
	}

	_, changed, err := p.store.Apply(p.variant.Feature(), info)
	if err != nil {
		p.metrics.PollTick(feature, false, err)
		p.log.Warn("%s: %v", feature, err)
		return false
	}
	p.metrics.PollTick(feature, changed, nil)
	return changed
}
