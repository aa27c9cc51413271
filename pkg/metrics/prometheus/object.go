package prometheus

import (
	"time"

	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// objectMetrics is the Prometheus implementation of object.Metrics.
type objectMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewObjectMetrics creates a Prometheus-backed object.Metrics. It returns
// nil when metrics are disabled, which object.Instrument treats as "leave
// the client unwrapped".
func NewObjectMetrics() metrics.ObjectMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newObjectMetrics(metrics.GetRegistry())
}

func newObjectMetrics(reg prometheus.Registerer) *objectMetrics {
	return &objectMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "object_operations_total",
				Help:      "Object store calls by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "object_operation_duration_seconds",
				Help:      "Duration of object store calls in seconds",
				Buckets:   []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "object_bytes_transferred_total",
				Help:      "Payload bytes read from and written to object stores",
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *objectMetrics) ObserveOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func (m *objectMetrics) RecordBytes(backend, operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(backend, operation).Add(float64(bytes))
}
