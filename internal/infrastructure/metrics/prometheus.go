package metrics

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/marketlens/client/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "marketlens"

// Observer exports connectivity probes and media server traffic to Prometheus
type Observer struct {
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	online        prometheus.Gauge
	imageRequests *prometheus.CounterVec
	imageBytes    prometheus.Counter
}

// NewObserver registers the collectors on reg (the default registerer when nil).
// Registering twice on the same registry reuses the existing collectors.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	o := &Observer{}

	o.probes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "probes_total",
		Help:      "Completed backend health probes by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, fmt.Errorf("register probe counter: %w", err)
	}

	o.probeDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "probe_duration_seconds",
		Help:      "Latency of backend health probes.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}))
	if err != nil {
		return nil, fmt.Errorf("register probe histogram: %w", err)
	}

	o.online, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "online",
		Help:      "1 when the last health probe succeeded, 0 otherwise.",
	}))
	if err != nil {
		return nil, fmt.Errorf("register online gauge: %w", err)
	}

	o.imageRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "image_requests_total",
		Help:      "Image requests served by the local media server by status code.",
	}, []string{"code"}))
	if err != nil {
		return nil, fmt.Errorf("register image request counter: %w", err)
	}

	o.imageBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "image_bytes_total",
		Help:      "Bytes of image content served by the local media server.",
	}))
	if err != nil {
		return nil, fmt.Errorf("register image bytes counter: %w", err)
	}

	return o, nil
}

// ObserveProbe records a completed probe
func (o *Observer) ObserveProbe(outcome domain.ProbeOutcome) {
	if o == nil {
		return
	}
	o.probes.WithLabelValues(string(outcome.Status)).Inc()
	o.probeDuration.Observe(outcome.Duration.Seconds())
	if outcome.Status == domain.StatusOnline {
		o.online.Set(1)
	} else {
		o.online.Set(0)
	}
}

// ObserveImage records one image request served with the given status code
func (o *Observer) ObserveImage(code int, bytes int64) {
	if o == nil {
		return
	}
	o.imageRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	if bytes > 0 {
		o.imageBytes.Add(float64(bytes))
	}
}

// register adds c to reg, or returns the collector already registered under the same descriptor
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

var _ domain.ProbeObserver = (*Observer)(nil)
