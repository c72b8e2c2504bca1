package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records limiter decisions and store calls in Prometheus.
type Metrics struct {
	decisions  *prometheus.CounterVec
	degraded   *prometheus.CounterVec
	storeCalls *prometheus.HistogramVec
	storeErrs  *prometheus.CounterVec
}

// NewMetrics registers the limiter collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "decisions_total",
			Help:      "Limiter decisions by limiter kind, endpoint class or dimension, and outcome.",
		}, []string{"limiter", "subject", "allowed"}),
		degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "degraded_decisions_total",
			Help:      "Decisions taken by the failure mode because the counter store was unavailable.",
		}, []string{"limiter"}),
		storeCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quotagate",
			Name:      "store_call_duration_seconds",
			Help:      "Latency of guarded counter store interactions.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"op"}),
		storeErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "store_errors_total",
			Help:      "Failed counter store interactions, including timeouts and an open circuit.",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveDecision(kind, subject string, allowed, degraded bool) {
	m.decisions.WithLabelValues(kind, subject, strconv.FormatBool(allowed)).Inc()
	if degraded {
		m.degraded.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveStoreCall(op string, elapsed time.Duration, err error) {
	m.storeCalls.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.storeErrs.WithLabelValues(op).Inc()
	}
}
