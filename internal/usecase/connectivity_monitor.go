package usecase

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/marketlens/client/internal/domain"
)

// MonitorConfig holds timing configuration for the connectivity monitor
type MonitorConfig struct {
	ProbeTimeout time.Duration // hard bound on a single health request
	Throttle     time.Duration // minimum spacing between probe starts
	Interval     time.Duration // scheduled probe cadence
}

// DefaultMonitorConfig returns the production timings: 3s timeout, 10s throttle, 60s cadence
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeTimeout: 3 * time.Second,
		Throttle:     10 * time.Second,
		Interval:     60 * time.Second,
	}
}

// ConnectivityMonitor owns the online/offline state of the backend.
//
// Probes are coalesced: a probe requested while another is in flight, or
// within the throttle window of the last probe start, is dropped rather than
// queued. Probe failures only flip the state; they are never returned.
type ConnectivityMonitor struct {
	checker  domain.HealthChecker
	observer domain.ProbeObserver
	config   MonitorConfig
	now      func() time.Time

	mu        sync.Mutex
	state     domain.ConnectivityState
	lastStart time.Time // zero means the next probe is not throttled
	listeners []func(domain.ConnectivityState)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewConnectivityMonitor creates a monitor in the unknown state. observer may be nil.
func NewConnectivityMonitor(checker domain.HealthChecker, observer domain.ProbeObserver, config MonitorConfig) *ConnectivityMonitor {
	defaults := DefaultMonitorConfig()
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.Throttle < 0 {
		config.Throttle = 0
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}

	return &ConnectivityMonitor{
		checker:  checker,
		observer: observer,
		config:   config,
		now:      time.Now,
		state:    domain.ConnectivityState{Status: domain.StatusUnknown},
	}
}

// State returns a snapshot of the current connectivity state
func (m *ConnectivityMonitor) State() domain.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers fn to receive the state after every completed probe or reset
func (m *ConnectivityMonitor) OnChange(fn func(domain.ConnectivityState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Probe runs one health check unless a probe is in flight or the throttle
// window has not elapsed. It reports whether a request was issued.
func (m *ConnectivityMonitor) Probe(ctx context.Context) bool {
	m.mu.Lock()
	now := m.now()
	if m.state.InFlight || (!m.lastStart.IsZero() && now.Sub(m.lastStart) < m.config.Throttle) {
		m.mu.Unlock()
		return false
	}
	m.lastStart = now
	m.state.InFlight = true
	m.state.LastProbe = now
	m.mu.Unlock()

	started := time.Now()
	outcome := domain.ProbeOutcome{Status: domain.StatusOffline}
	aborted := false
	defer func() {
		if aborted {
			m.abort()
			return
		}
		outcome.Duration = time.Since(started)
		m.complete(outcome)
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	statusCode, err := m.checker.CheckHealth(probeCtx)
	outcome.StatusCode = statusCode
	switch {
	case err != nil && ctx.Err() != nil:
		// the caller went away (Stop or shutdown); that says nothing about the backend
		aborted = true
		log.Printf("[Connectivity] Probe abandoned: %v", ctx.Err())
	case err != nil:
		outcome.Err = err
		log.Printf("[Connectivity] API health check failed: %v", err)
	case statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices:
		log.Printf("[Connectivity] API responded with status %d", statusCode)
	default:
		outcome.Status = domain.StatusOnline
	}
	return true
}

// ForceProbe clears the throttle window and probes. A probe already in
// flight is left alone and this call is dropped.
func (m *ConnectivityMonitor) ForceProbe(ctx context.Context) bool {
	m.mu.Lock()
	m.lastStart = time.Time{}
	m.mu.Unlock()
	return m.Probe(ctx)
}

// Reset returns the status to unknown and clears the throttle window
func (m *ConnectivityMonitor) Reset() {
	m.mu.Lock()
	m.state.Status = domain.StatusUnknown
	m.lastStart = time.Time{}
	snapshot := m.state
	listeners := append([]func(domain.ConnectivityState){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// abort ends an in-flight probe without touching the status, listeners or observer
func (m *ConnectivityMonitor) abort() {
	m.mu.Lock()
	m.state.InFlight = false
	m.mu.Unlock()
}

func (m *ConnectivityMonitor) complete(outcome domain.ProbeOutcome) {
	m.mu.Lock()
	m.state.Status = outcome.Status
	m.state.InFlight = false
	snapshot := m.state
	listeners := append([]func(domain.ConnectivityState){}, m.listeners...)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ObserveProbe(outcome)
	}
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Start probes once immediately and then on every interval tick until Stop
// is called or ctx ends. Calling Start on a running monitor does nothing.
func (m *ConnectivityMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, done)
}

// Stop cancels the schedule and waits for the background loop to exit
func (m *ConnectivityMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *ConnectivityMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.Probe(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
