package detection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/timeutil"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

type setCall struct {
	feature types.Feature
	enabled bool
}

type fakeAPI struct {
	mu        sync.Mutex
	infos     map[types.Feature]string
	infoErr   error
	infoCalls int
	setErr    error
	setCalls  []setCall
	sensErr   error
	sensCalls []device.Sensitivity
	block     chan struct{}
	entered   chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		infos:   make(map[types.Feature]string),
		entered: make(chan struct{}, 16),
	}
}

func (f *fakeAPI) Info(ctx context.Context, feature types.Feature) (json.RawMessage, error) {
	f.mu.Lock()
	f.infoCalls++
	block := f.block
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	body, ok := f.infos[feature]
	if !ok {
		body = `{}`
	}
	return json.RawMessage(body), nil
}

func (f *fakeAPI) SetDetection(_ context.Context, feature types.Feature, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, setCall{feature, enabled})
	return f.setErr
}

func (f *fakeAPI) SetMotionSensitivity(_ context.Context, s device.Sensitivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensCalls = append(f.sensCalls, s)
	return f.sensErr
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

func newTestPoller(t *testing.T, api *fakeAPI, feature types.Feature) (*Poller, *Store, *timeutil.MockClock) {
	t.Helper()
	store := NewStore()
	v, err := NewPollable(feature, api)
	require.NoError(t, err)
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	return NewPoller(v, store, clock, 0, nil), store, clock
}

func TestToggleConfirmed(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api, ServiceConfig{})
	defer svc.Close()

	st, res, err := svc.Toggle(context.Background(), types.FeatureFace, true)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, st.Enabled)
	assert.False(t, st.Pending)
	assert.Equal(t, "Active - Scanning", st.Status)
	assert.Equal(t, []setCall{{types.FeatureFace, true}}, api.setCalls)
}

func TestToggleRevertsOnFailure(t *testing.T) {
	api := newFakeAPI()
	api.setErr = &device.HTTPError{Method: "POST", Path: "/detection/motion", StatusCode: 500}
	svc := NewService(api, ServiceConfig{})
	defer svc.Close()

	_, sub := svc.Store().Subscribe()

	st, res, err := svc.Toggle(context.Background(), types.FeatureMotion, true)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 500 from /detection/motion", res.Error)
	assert.False(t, st.Enabled)
	assert.Equal(t, "Disabled", st.Status)

	tentative := <-sub
	assert.True(t, tentative.Enabled, "optimistic flip is published first")
	assert.True(t, tentative.Pending)
	reverted := <-sub
	assert.False(t, reverted.Enabled)
	assert.False(t, reverted.Pending)
}

func TestToggleUnknownFeature(t *testing.T) {
	svc := NewService(newFakeAPI(), ServiceConfig{})
	defer svc.Close()

	_, _, err := svc.Toggle(context.Background(), types.Feature("sound"), true)
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestTransitionSettlesOnce(t *testing.T) {
	store := NewStore()
	tr, st, err := store.BeginToggle(types.FeaturePipeline, true)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, PhaseTentative, tr.Phase())
	assert.False(t, tr.Previous)

	st = tr.Revert()
	assert.False(t, st.Enabled)
	assert.Equal(t, PhaseReverted, tr.Phase())

	// settling again changes nothing
	st = tr.Confirm()
	assert.False(t, st.Enabled)
	assert.Equal(t, PhaseReverted, tr.Phase())
}

func TestPollOnceAppliesAndPublishesOnlyChanges(t *testing.T) {
	api := newFakeAPI()
	api.infos[types.FeatureFace] = `{"enabled":true,"faceCount":2,"faceNames":["a","b"]}`
	p, store, _ := newTestPoller(t, api, types.FeatureFace)
	_, sub := store.Subscribe()

	assert.True(t, p.pollOnce(context.Background(), p.generation()))
	got := <-sub
	assert.Equal(t, "Active - 2 Face(s) Detected", got.Status)

	assert.False(t, p.pollOnce(context.Background(), p.generation()), "identical result")
	select {
	case extra := <-sub:
		t.Fatalf("unexpected update: %+v", extra)
	default:
	}
}

func TestPollOnceFailureLeavesStateUntouched(t *testing.T) {
	api := newFakeAPI()
	api.infoErr = errors.New("connection refused")
	p, store, _ := newTestPoller(t, api, types.FeatureMotion)
	before, _ := store.Get(types.FeatureMotion)

	assert.False(t, p.pollOnce(context.Background(), p.generation()))

	after, _ := store.Get(types.FeatureMotion)
	assert.Equal(t, before, after)
}

func TestStalePollResultIsDiscardedAfterStop(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	api.infos[types.FeatureCrossline] = `{"enabled":true,"personCount":4}`
	p, store, _ := newTestPoller(t, api, types.FeatureCrossline)
	ctx := context.Background()

	p.Start(ctx)
	<-api.entered // the immediate fetch

	gen := p.generation()
	done := make(chan bool, 1)
	go func() { done <- p.pollOnce(ctx, gen) }()
	<-api.entered

	p.Stop()
	close(api.block)

	assert.False(t, <-done)
	st, _ := store.Get(types.FeatureCrossline)
	assert.False(t, st.Enabled)
	assert.Equal(t, "Disabled", st.Status)
}

func TestPollerTicksOnInterval(t *testing.T) {
	api := newFakeAPI()
	p, _, clock := newTestPoller(t, api, types.FeaturePipeline)

	p.Start(context.Background())
	assert.True(t, p.Running())
	p.Start(context.Background()) // no second loop

	require.Eventually(t, func() bool { return api.calls() == 1 }, time.Second, 5*time.Millisecond)

	tickers := clock.Tickers()
	require.Len(t, tickers, 1)
	assert.Equal(t, DefaultPollInterval, tickers[0].Interval())

	tickers[0].Tick(clock.Now())
	require.Eventually(t, func() bool { return api.calls() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	assert.True(t, tickers[0].Stopped())
}

func TestPollerStopRacingStart(t *testing.T) {
	api := newFakeAPI()
	p, _, _ := newTestPoller(t, api, types.FeatureFace)
	ctx := context.Background()

	for range 2000 {
		p.Start(ctx)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
		go func() {
			defer wg.Done()
			p.Start(ctx)
		}()
		wg.Wait()
		p.Stop()
		require.False(t, p.Running())
	}
}

func TestActivePollersGaugeSurvivesStopStartRace(t *testing.T) {
	m := metrics.New()
	store := NewStore()
	v, err := NewPollable(types.FeatureMotion, newFakeAPI())
	require.NoError(t, err)
	p := NewPoller(v, store, timeutil.NewMockClock(time.Unix(0, 0)), 0, m)
	ctx := context.Background()

	for range 200 {
		p.Start(ctx)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
		go func() {
			defer wg.Done()
			p.Start(ctx)
		}()
		wg.Wait()
		p.Stop()
	}
	assert.Equal(t, int64(0), m.ActivePollers.Load())
}

func TestExpandCollapse(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api, ServiceConfig{Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	defer svc.Close()

	st, err := svc.Expand(types.FeatureFace)
	require.NoError(t, err)
	assert.True(t, st.Expanded)
	assert.True(t, svc.pollers[types.FeatureFace].Running())
	assert.False(t, svc.pollers[types.FeatureMotion].Running())

	st, err = svc.Collapse(types.FeatureFace)
	require.NoError(t, err)
	assert.False(t, st.Expanded)
	assert.False(t, svc.pollers[types.FeatureFace].Running())
}

func TestSetStreamingIsLocal(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api, ServiceConfig{})
	defer svc.Close()

	st, err := svc.SetStreaming(types.FeatureCrossline, true)

	require.NoError(t, err)
	assert.True(t, st.Streaming)
	assert.Empty(t, api.setCalls)
}

func TestSetMotionSensitivity(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api, ServiceConfig{})
	defer svc.Close()

	_, ok := svc.MotionSensitivity()
	assert.False(t, ok)

	res := svc.SetMotionSensitivity(context.Background(), device.Sensitivity{MotionThreshold: 30, AlarmThreshold: 5})
	require.True(t, res.Success)
	got, ok := svc.MotionSensitivity()
	require.True(t, ok)
	assert.Equal(t, 30, got.MotionThreshold)

	api.sensErr = errors.New("dial tcp 10.0.0.2:80: connect: connection refused")
	res = svc.SetMotionSensitivity(context.Background(), device.Sensitivity{MotionThreshold: 10, AlarmThreshold: 1})
	assert.False(t, res.Success)
	assert.Equal(t, "Connection refused or host unreachable", res.Error)
	got, _ = svc.MotionSensitivity()
	assert.Equal(t, 30, got.MotionThreshold, "failed push does not replace the last accepted value")
	assert.Len(t, api.sensCalls, 2, "no retry")

	res = svc.SetMotionSensitivity(context.Background(), device.Sensitivity{MotionThreshold: -1})
	assert.False(t, res.Success)
	assert.Len(t, api.sensCalls, 2)
}
