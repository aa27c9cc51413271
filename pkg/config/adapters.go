package config

import (
	"errors"

	"github.com/marmos91/dittodav/internal/logger"
	protocol "github.com/marmos91/dittodav/internal/protocol/webdav"
	"github.com/marmos91/dittodav/pkg/adapter"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/metrics"
)

// ErrNoAdapters is returned when every protocol adapter is disabled.
var ErrNoAdapters = errors.New("no adapters enabled in configuration")

// CreateAdapters builds the enabled protocol adapters. version is reported
// in the Server header of every WebDAV response; httpMetrics may be nil.
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics, version string) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if dav := cfg.Adapters.WebDAV; dav.Enabled {
		logger.Debug("WebDAV adapter configured on %s:%d (rate limit %v req/s)",
			dav.Address, dav.Port, dav.RateLimit.RequestsPerSecond)
		adapters = append(adapters, webdav.New(dav, httpMetrics, protocol.WithVersion(version)))
	}

	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}
	return adapters, nil
}
