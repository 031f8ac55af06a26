package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketlens/client/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker is a test double for domain.HealthChecker
type fakeChecker struct {
	status  int
	err     error
	block   chan struct{} // when set, CheckHealth waits for it or ctx
	waitCtx bool          // when set, CheckHealth waits for ctx to end
	calls   atomic.Int32
}

func (f *fakeChecker) CheckHealth(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.waitCtx {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.status, f.err
}

// fakeClock lets tests move time forward explicitly
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver collects probe outcomes
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []domain.ProbeOutcome
}

func (r *recordingObserver) ObserveProbe(outcome domain.ProbeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newTestMonitor(checker *fakeChecker, observer domain.ProbeObserver) (*ConnectivityMonitor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	monitor := NewConnectivityMonitor(checker, observer, DefaultMonitorConfig())
	monitor.now = clock.Now
	return monitor, clock
}

func TestConnectivityMonitor_InitialState(t *testing.T) {
	monitor, _ := newTestMonitor(&fakeChecker{status: http.StatusOK}, nil)

	state := monitor.State()

	assert.Equal(t, domain.StatusUnknown, state.Status)
	assert.False(t, state.InFlight)
	assert.True(t, state.LastProbe.IsZero())
}

func TestConnectivityMonitor_ProbeOnline(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor, clock := newTestMonitor(checker, nil)

	ran := monitor.Probe(context.Background())

	assert.True(t, ran)
	state := monitor.State()
	assert.Equal(t, domain.StatusOnline, state.Status)
	assert.False(t, state.InFlight)
	assert.Equal(t, clock.Now(), state.LastProbe)
}

func TestConnectivityMonitor_ProbeOffline(t *testing.T) {
	tests := []struct {
		name    string
		checker *fakeChecker
	}{
		{"transport failure", &fakeChecker{err: errors.New("connection refused")}},
		{"non-success status", &fakeChecker{status: http.StatusServiceUnavailable}},
		{"redirect status", &fakeChecker{status: http.StatusFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor, _ := newTestMonitor(tt.checker, nil)

			monitor.Probe(context.Background())

			assert.Equal(t, domain.StatusOffline, monitor.State().Status)
			assert.False(t, monitor.State().InFlight)
		})
	}
}

func TestConnectivityMonitor_Throttle(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor, clock := newTestMonitor(checker, nil)

	assert.True(t, monitor.Probe(context.Background()))
	clock.Advance(5 * time.Second)
	assert.False(t, monitor.Probe(context.Background()))
	assert.Equal(t, int32(1), checker.calls.Load())

	clock.Advance(5 * time.Second)
	assert.True(t, monitor.Probe(context.Background()))
	assert.Equal(t, int32(2), checker.calls.Load())
}

func TestConnectivityMonitor_ForceProbeBypassesThrottle(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor, _ := newTestMonitor(checker, nil)

	monitor.Probe(context.Background())
	monitor.Probe(context.Background())
	assert.Equal(t, int32(1), checker.calls.Load())

	assert.True(t, monitor.ForceProbe(context.Background()))
	assert.Equal(t, int32(2), checker.calls.Load())
}

func TestConnectivityMonitor_CoalescesInFlight(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK, block: make(chan struct{})}
	monitor, _ := newTestMonitor(checker, nil)

	finished := make(chan bool)
	go func() {
		finished <- monitor.Probe(context.Background())
	}()

	require.Eventually(t, func() bool { return monitor.State().InFlight }, time.Second, 5*time.Millisecond)

	start := time.Now()
	assert.False(t, monitor.Probe(context.Background()))
	assert.False(t, monitor.ForceProbe(context.Background()), "force must not stack a second probe")
	assert.Less(t, time.Since(start), 100*time.Millisecond, "dropped probes must not block")

	close(checker.block)
	assert.True(t, <-finished)
	assert.Equal(t, int32(1), checker.calls.Load())
	assert.Equal(t, domain.StatusOnline, monitor.State().Status)
}

func TestConnectivityMonitor_TimeoutGoesOffline(t *testing.T) {
	checker := &fakeChecker{waitCtx: true}
	config := DefaultMonitorConfig()
	config.ProbeTimeout = 50 * time.Millisecond
	monitor := NewConnectivityMonitor(checker, nil, config)

	start := time.Now()
	monitor.Probe(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	state := monitor.State()
	assert.Equal(t, domain.StatusOffline, state.Status)
	assert.False(t, state.InFlight)
}

func TestConnectivityMonitor_ObserverAndListeners(t *testing.T) {
	checker := &fakeChecker{err: errors.New("down")}
	observer := &recordingObserver{}
	monitor, _ := newTestMonitor(checker, observer)

	var seen []domain.ConnectivityState
	monitor.OnChange(func(s domain.ConnectivityState) { seen = append(seen, s) })

	monitor.Probe(context.Background())
	monitor.Reset()

	require.Len(t, observer.outcomes, 1)
	assert.Equal(t, domain.StatusOffline, observer.outcomes[0].Status)
	assert.Error(t, observer.outcomes[0].Err)

	require.Len(t, seen, 2)
	assert.Equal(t, domain.StatusOffline, seen[0].Status)
	assert.Equal(t, domain.StatusUnknown, seen[1].Status)
}

func TestConnectivityMonitor_ResetClearsThrottle(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor, _ := newTestMonitor(checker, nil)

	monitor.Probe(context.Background())
	monitor.Reset()

	assert.Equal(t, domain.StatusUnknown, monitor.State().Status)
	assert.True(t, monitor.Probe(context.Background()))
}

func TestConnectivityMonitor_StartStop(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor := NewConnectivityMonitor(checker, nil, MonitorConfig{
		ProbeTimeout: 50 * time.Millisecond,
		Throttle:     time.Millisecond,
		Interval:     20 * time.Millisecond,
	})

	monitor.Start(context.Background())
	monitor.Start(context.Background())

	require.Eventually(t, func() bool { return checker.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	monitor.Stop()

	after := checker.calls.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, checker.calls.Load(), "no probes after Stop")
	assert.Equal(t, domain.StatusOnline, monitor.State().Status)

	monitor.Stop()
}

func TestConnectivityMonitor_StartProbesImmediately(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor := NewConnectivityMonitor(checker, nil, DefaultMonitorConfig())

	monitor.Start(context.Background())
	defer monitor.Stop()

	require.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return monitor.State().Status == domain.StatusOnline }, time.Second, 5*time.Millisecond)
}

func TestConnectivityMonitor_StopDuringProbeKeepsStatus(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK, block: make(chan struct{})}
	observer := &recordingObserver{}
	monitor := NewConnectivityMonitor(checker, observer, MonitorConfig{
		ProbeTimeout: 5 * time.Second,
		Interval:     time.Minute,
	})

	var mu sync.Mutex
	var seen []domain.ConnectivityStatus
	monitor.OnChange(func(s domain.ConnectivityState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Status)
	})

	monitor.Start(context.Background())
	require.Eventually(t, func() bool { return monitor.State().InFlight }, time.Second, 5*time.Millisecond)
	monitor.Stop()

	state := monitor.State()
	assert.Equal(t, domain.StatusUnknown, state.Status)
	assert.False(t, state.InFlight)
	mu.Lock()
	assert.Empty(t, seen)
	mu.Unlock()
	observer.mu.Lock()
	assert.Empty(t, observer.outcomes)
	observer.mu.Unlock()
}

func TestConnectivityMonitor_CancelledCallerLeavesOnlineStatus(t *testing.T) {
	checker := &fakeChecker{status: http.StatusOK}
	monitor, clock := newTestMonitor(checker, nil)
	require.True(t, monitor.Probe(context.Background()))
	require.Equal(t, domain.StatusOnline, monitor.State().Status)

	checker.waitCtx = true
	clock.Advance(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, monitor.Probe(ctx))
	assert.Equal(t, domain.StatusOnline, monitor.State().Status)
	assert.False(t, monitor.State().InFlight)
}
