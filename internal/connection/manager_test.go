package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
)

type controlCall struct {
	key, value  string
	hasDeadline bool
}

type fakeAPI struct {
	mu         sync.Mutex
	failures   int // control calls to fail before succeeding
	controlErr error
	calls      []controlCall
	probeErr   error
	probes     int
	deadline   time.Time
}

func (f *fakeAPI) Control(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.calls = append(f.calls, controlCall{key, value, ok})
	if len(f.calls) <= f.failures {
		return f.controlErr
	}
	return nil
}

func (f *fakeAPI) TestConnection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	f.deadline, _ = ctx.Deadline()
	return f.probeErr
}

func newManager(api *fakeAPI) (*Manager, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	return NewManager(api, Config{Clock: clock}), clock
}

func TestUpdateConfigRetriesWithBackoff(t *testing.T) {
	api := &fakeAPI{failures: 2, controlErr: errors.New("Get \"http://cam/control\": context deadline exceeded")}
	m, clock := newManager(api)

	res := m.UpdateConfig(context.Background(), "framesize", "8")

	assert.True(t, res.Success)
	assert.Len(t, api.calls, 3)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, clock.Sleeps())
	for _, c := range api.calls {
		assert.Equal(t, "framesize", c.key)
		assert.True(t, c.hasDeadline, "every attempt carries its own timeout")
	}

	st := m.Status()
	assert.Equal(t, Connected, st.State)
	assert.Empty(t, st.LastError)
}

func TestUpdateConfigGivesUpAfterThreeAttempts(t *testing.T) {
	api := &fakeAPI{failures: 10, controlErr: errors.New("dial tcp 192.168.4.1:80: connect: connection refused")}
	m, clock := newManager(api)

	res := m.UpdateConfig(context.Background(), "quality", "10")

	assert.False(t, res.Success)
	assert.Equal(t, "Connection refused or host unreachable", res.Error)
	assert.Len(t, api.calls, 3)
	assert.Len(t, clock.Sleeps(), 2, "no wait after the last attempt")

	st := m.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.Equal(t, res.Error, st.LastError)
	require.NotNil(t, st.LastChecked)
}

func TestUpdateConfigStopsWhenContextEnds(t *testing.T) {
	api := &fakeAPI{failures: 10, controlErr: errors.New("boom")}
	m, _ := newManager(api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := m.UpdateConfig(ctx, "vflip", "1")

	assert.False(t, res.Success)
	assert.Len(t, api.calls, 1)
}

func TestTestConnectionDoesNotRetry(t *testing.T) {
	api := &fakeAPI{probeErr: errors.New("i/o timeout")}
	m, _ := newManager(api)

	res := m.TestConnection(context.Background(), 3*time.Second)

	assert.False(t, res.Success)
	assert.Equal(t, "Request timed out", res.Error)
	assert.Equal(t, 1, api.probes)
	assert.Equal(t, Disconnected, m.Status().State)
	assert.WithinDuration(t, time.Now().Add(3*time.Second), api.deadline, time.Second)

	api.probeErr = nil
	res = m.TestConnection(context.Background(), 0)
	assert.True(t, res.Success)
	assert.Equal(t, Connected, m.Status().State)
	assert.WithinDuration(t, time.Now().Add(DefaultProbeTimeout), api.deadline, time.Second)
}

func TestObserve(t *testing.T) {
	m, _ := newManager(&fakeAPI{})
	assert.Equal(t, Disconnected, m.Status().State)

	m.Observe(nil)
	assert.Equal(t, Connected, m.Status().State)

	m.Observe(errors.New("connection refused"))
	st := m.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.Equal(t, "Connection refused or host unreachable", st.LastError)
}
