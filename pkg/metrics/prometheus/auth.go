package prometheus

import (
	"time"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// authMetrics is the Prometheus implementation of auth.Metrics.
type authMetrics struct {
	cacheLookups     *prometheus.CounterVec
	authorityCalls   *prometheus.CounterVec
	authorityLatency prometheus.Histogram
}

// NewAuthMetrics creates a Prometheus-backed auth.Metrics, or a no-op one
// when metrics are disabled.
func NewAuthMetrics() metrics.AuthMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopAuthMetrics()
	}
	return newAuthMetrics(metrics.GetRegistry())
}

func newAuthMetrics(reg prometheus.Registerer) *authMetrics {
	return &authMetrics{
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "auth_cache_lookups_total",
				Help:      "Authentication decision cache lookups by result",
			},
			[]string{"result"}, // hit or miss
		),
		authorityCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "auth_authority_calls_total",
				Help:      "Calls to the external authentication authority by decision",
			},
			[]string{"decision"},
		),
		authorityLatency: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "auth_authority_duration_seconds",
				Help:      "Latency of external authentication authority calls",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *authMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *authMetrics) AuthorityCall(status auth.Status, duration time.Duration) {
	m.authorityCalls.WithLabelValues(status.String()).Inc()
	m.authorityLatency.Observe(duration.Seconds())
}
