package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Attempt(AttemptDNSError)
	m.Attempt(AttemptDNSError)
	m.Attempt(AttemptResponse)
	m.ProbeDone(OutcomeFound, time.Second)
	m.Emitted()
	m.Acquired()
	m.Acquired()
	m.Released()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues(AttemptDNSError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(AttemptResponse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues(OutcomeFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Attempt(AttemptTimeout)
		m.ProbeDone(OutcomeFailed, time.Millisecond)
		m.Emitted()
		m.Acquired()
		m.Released()
	})
}
