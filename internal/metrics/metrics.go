package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cacheprobe"

// Probe outcomes.
const (
	OutcomeFound  = "found"
	OutcomeClean  = "clean"
	OutcomeFailed = "failed"
)

// Attempt results.
const (
	AttemptDNSError       = "dns_error"
	AttemptTransportError = "transport_error"
	AttemptTimeout        = "timeout"
	AttemptResponse       = "response"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	probes   *prometheus.CounterVec
	attempts *prometheus.CounterVec
	emitted  prometheus.Counter
	inflight prometheus.Gauge
	duration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Completed URL probes by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Probe attempts by result.",
		}, []string{"result"}),
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_emitted_total",
			Help:      "Findings appended to the output document.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_inflight",
			Help:      "Probes currently holding a pool permit.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall-clock duration of a full probe including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	reg.MustRegister(m.probes, m.attempts, m.emitted, m.inflight, m.duration)

	return m
}

func (m *Metrics) Attempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ProbeDone(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) Emitted() {
	if m == nil {
		return
	}
	m.emitted.Inc()
}

func (m *Metrics) Acquired() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) Released() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
