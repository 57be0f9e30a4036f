package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts retrieval attempts per strategy and outcome.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the retrieval collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docvault_retrieval_attempts_total",
				Help: "Blob retrieval attempts by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docvault_retrieval_attempt_duration_seconds",
				Help:    "Duration of individual blob retrieval attempts.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
	}
	if err := reg.Register(m.attempts); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(s Strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(s), outcome).Inc()
	m.duration.WithLabelValues(string(s)).Observe(d.Seconds())
}
