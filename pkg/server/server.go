package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/registry"
)

// DefaultShutdownTimeout bounds each shutdown phase when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve has already been called")

// DittoServer manages the lifecycle of the protocol adapters and the
// background services that share one registry of repositories.
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts the collector, the metrics listener and all
//     adapters concurrently
//  4. Shutdown: context cancellation or an adapter failure stops, in order,
//     the adapters (reverse registration order), the collector, the
//     registry (which drains pending notifications and closes decision
//     caches) and finally the metrics listener
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() runs at most once.
type DittoServer struct {
	registry        *registry.Registry
	collector       *gc.Collector
	metricsServer   *metrics.Server
	shutdownTimeout time.Duration

	// mu protects the adapters slice and served flag
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// Option customizes a DittoServer.
type Option func(*DittoServer)

// WithCollector runs the collector for the lifetime of the server.
func WithCollector(c *gc.Collector) Option {
	return func(s *DittoServer) { s.collector = c }
}

// WithMetricsServer runs the metrics listener for the lifetime of the server.
func WithMetricsServer(m *metrics.Server) Option {
	return func(s *DittoServer) { s.metricsServer = m }
}

// WithShutdownTimeout bounds each shutdown phase.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *DittoServer) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New creates a DittoServer serving reg.
//
// Panics if reg is nil (indicates programmer error).
func New(reg *registry.Registry, opts ...Option) *DittoServer {
	if reg == nil {
		panic("registry cannot be nil")
	}

	s := &DittoServer{
		registry:        reg,
		shutdownTimeout: DefaultShutdownTimeout,
		adapters:        make([]adapter.Adapter, 0, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAdapter injects the registry into a and registers it.
//
// Returns an error if another adapter already speaks the same protocol or
// binds the same non-zero port.
//
// Panics if a is nil or Serve() has already been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts everything and blocks until the context is cancelled or an
// adapter fails.
//
// Returns:
//   - context error if shutdown was triggered by cancellation
//   - the adapter error if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting dittodav with %d adapter(s) and %d repositories",
		len(adapters), s.registry.CountRepositories())

	if s.collector != nil {
		s.collector.Start()
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	metricsDone := make(chan struct{})
	if s.metricsServer != nil {
		go func() {
			defer close(metricsDone)
			if err := s.metricsServer.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	// Buffered to prevent goroutine leaks if multiple adapters fail simultaneously
	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)
	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.shutdownBackground()

	stopMetrics()
	<-metricsDone

	logger.Info("dittodav stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order, each
// bounded by the shutdown timeout.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// shutdownBackground stops the collector and closes the registry once no
// adapter can produce new work.
func (s *DittoServer) shutdownBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if s.collector != nil {
		if err := s.collector.Stop(ctx); err != nil {
			logger.Warn("Collector stop: %v", err)
		}
	}

	if err := s.registry.Close(ctx); err != nil {
		logger.Error("Error closing registry: %v", err)
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
