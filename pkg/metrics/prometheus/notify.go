package prometheus

import (
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// notifyMetrics is the Prometheus implementation of notify.Metrics.
type notifyMetrics struct {
	eventsQueued  *prometheus.CounterVec
	batches       *prometheus.CounterVec
	eventsByBatch *prometheus.CounterVec
	retries       *prometheus.CounterVec
}

// NewNotifyMetrics creates a Prometheus-backed notify.Metrics, or a no-op
// one when metrics are disabled.
func NewNotifyMetrics() metrics.NotifyMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopNotifyMetrics()
	}
	return newNotifyMetrics(metrics.GetRegistry())
}

func newNotifyMetrics(reg prometheus.Registerer) *notifyMetrics {
	return &notifyMetrics{
		eventsQueued: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "notify_events_queued_total",
				Help:      "Change events queued for webhook delivery by repository",
			},
			[]string{"repository"},
		),
		batches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "notify_batches_total",
				Help:      "Webhook batches by repository and outcome",
			},
			[]string{"repository", "outcome"},
		),
		eventsByBatch: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "notify_batch_events_total",
				Help:      "Events contained in finished batches by repository and outcome",
			},
			[]string{"repository", "outcome"},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "notify_retries_total",
				Help:      "Webhook requests retried after a transport error",
			},
			[]string{"repository"},
		),
	}
}

func (m *notifyMetrics) EventQueued(repository string) {
	m.eventsQueued.WithLabelValues(repository).Inc()
}

func (m *notifyMetrics) BatchFinished(repository string, events int, outcome notify.Outcome) {
	m.batches.WithLabelValues(repository, string(outcome)).Inc()
	m.eventsByBatch.WithLabelValues(repository, string(outcome)).Add(float64(events))
}

func (m *notifyMetrics) RequestRetried(repository string) {
	m.retries.WithLabelValues(repository).Inc()
}
