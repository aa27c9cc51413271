package config

import (
	"github.com/marmos91/dittodav/pkg/metrics"
	promMetrics "github.com/marmos91/dittodav/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTP records WebDAV traffic (never nil, uses noop if disabled)
	HTTP metrics.HTTPMetrics

	// Auth records decision cache and authority activity (never nil)
	Auth metrics.AuthMetrics

	// Notify records webhook batches (never nil)
	Notify metrics.NotifyMetrics

	// Object records object store calls (nil if disabled, which leaves
	// clients unwrapped)
	Object metrics.ObjectMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTP:   metrics.NewNoopHTTPMetrics(),
			Auth:   metrics.NewNoopAuthMetrics(),
			Notify: metrics.NewNoopNotifyMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Address: cfg.Server.Metrics.Address,
		Port:    cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server: server,
		HTTP:   promMetrics.NewHTTPMetrics(),
		Auth:   promMetrics.NewAuthMetrics(),
		Notify: promMetrics.NewNotifyMetrics(),
		Object: promMetrics.NewObjectMetrics(),
	}
}
