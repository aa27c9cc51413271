// Package webdav runs the WebDAV protocol handler behind an HTTP listener.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	protocol "github.com/marmos91/dittodav/internal/protocol/webdav"
	"github.com/marmos91/dittodav/internal/ratelimiter"
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/registry"
)

// DefaultPort is the WebDAV listener port when none is configured.
const DefaultPort = 8080

// Config holds configuration parameters for the WebDAV listener.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - ReadHeaderTimeout: 10s
//   - ReadTimeout: 5m (uploads are read within it)
//   - WriteTimeout: 5m (downloads are written within it)
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
type Config struct {
	// Enabled controls whether the WebDAV adapter is active.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Address to bind. Empty binds all interfaces.
	Address string `mapstructure:"address" json:"address,omitempty"`

	// Port is the TCP port to listen on. -1 asks the kernel for an
	// ephemeral port.
	Port int `mapstructure:"port" validate:"min=-1,max=65535" json:"port"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"min=0" json:"read_header_timeout,omitempty"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"min=0" json:"read_timeout,omitempty"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"min=0" json:"write_timeout,omitempty"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"min=0" json:"idle_timeout,omitempty"`

	// ShutdownTimeout bounds how long in-flight requests may take to
	// finish once shutdown starts. Remaining connections are then closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" json:"shutdown_timeout,omitempty"`

	// RateLimit throttles incoming requests. Zero rates disable it.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate for the whole listener.
	RequestsPerSecond uint `mapstructure:"requests_per_second" json:"requests_per_second,omitempty"`

	// Burst is the global bucket capacity (default: RequestsPerSecond).
	Burst uint `mapstructure:"burst" json:"burst,omitempty"`

	// ClientRequestsPerSecond is the sustained rate per client address.
	ClientRequestsPerSecond uint `mapstructure:"client_requests_per_second" json:"client_requests_per_second,omitempty"`

	// ClientBurst is the per-client bucket capacity.
	ClientBurst uint `mapstructure:"client_burst" json:"client_burst,omitempty"`

	// ClientIdle is how long an unused client bucket is kept (default: 10m).
	ClientIdle time.Duration `mapstructure:"client_idle" json:"client_idle,omitempty"`
}

func (c *Config) applyDefaults() {
	// Enabled defaults are handled in pkg/config so that an explicit false
	// survives.
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < -1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.ReadHeaderTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// WebDAVAdapter implements adapter.Adapter for WebDAV over HTTP.
//
// Middleware order, outermost first: request id, access log and metrics,
// rate limit, protocol handler. Rejections by the limiter are therefore
// logged and counted like any other response.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed, idle connections closed
//  3. Wait for in-flight requests (up to ShutdownTimeout)
//  4. Force-close remaining connections after timeout
type WebDAVAdapter struct {
	config  Config
	metrics metrics.HTTPMetrics
	options []protocol.Option

	registry *registry.Registry
	handler  http.Handler
	global   *ratelimiter.RateLimiter
	clients  *ratelimiter.KeyedLimiter

	server       *http.Server
	shutdownOnce sync.Once
	shutdownErr  error

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New creates a WebDAV adapter in a stopped state. Call SetRegistry() to
// inject the repositories, then Serve().
//
// A nil httpMetrics disables metrics. opts are passed to the protocol
// handler (for example the version advertised in the Server header).
//
// Panics if config validation fails.
func New(config Config, httpMetrics metrics.HTTPMetrics, opts ...protocol.Option) *WebDAVAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid WebDAV config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	a := &WebDAVAdapter{
		config:  config,
		metrics: httpMetrics,
		options: opts,
		ready:   make(chan struct{}),
	}

	rl := config.RateLimit
	if rl.RequestsPerSecond > 0 {
		a.global = ratelimiter.New(rl.RequestsPerSecond, rl.Burst)
		logger.Debug("WebDAV global rate limit: %d req/s (burst %d)", rl.RequestsPerSecond, rl.Burst)
	}
	if rl.ClientRequestsPerSecond > 0 {
		a.clients = ratelimiter.NewKeyed(rl.ClientRequestsPerSecond, rl.ClientBurst, rl.ClientIdle)
		logger.Debug("WebDAV per-client rate limit: %d req/s (burst %d)", rl.ClientRequestsPerSecond, rl.ClientBurst)
	}

	return a
}

// SetRegistry injects the repositories and assembles the handler chain.
func (a *WebDAVAdapter) SetRegistry(reg *registry.Registry) {
	a.registry = reg

	var h http.Handler = protocol.New(reg, a.options...)
	h = withRateLimit(h, a.global, a.clients, a.metrics)
	h = withAccessLog(h, a.metrics)
	h = withRequestID(h)
	a.handler = h

	logger.Debug("WebDAV registry configured: %d repositories", reg.CountRepositories())
}

// Handler returns the full middleware chain. Nil before SetRegistry.
func (a *WebDAVAdapter) Handler() http.Handler {
	return a.handler
}

// ClientLimiter returns the per-client limiter, or nil when per-client
// limiting is disabled. Its idle buckets are swept by the gc collector.
func (a *WebDAVAdapter) ClientLimiter() *ratelimiter.KeyedLimiter {
	return a.clients
}

// Serve binds the listener and serves until the context is cancelled.
func (a *WebDAVAdapter) Serve(ctx context.Context) error {
	if a.handler == nil {
		return errors.New("WebDAV adapter has no registry")
	}

	port := a.config.Port
	if port < 0 {
		port = 0
	}
	addr := net.JoinHostPort(a.config.Address, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create WebDAV listener on %s: %w", addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: a.config.ReadHeaderTimeout,
		ReadTimeout:       a.config.ReadTimeout,
		WriteTimeout:      a.config.WriteTimeout,
		IdleTimeout:       a.config.IdleTimeout,
	}
	server := a.server
	a.mu.Unlock()
	close(a.ready)

	logger.Info("WebDAV server listening on %s", ln.Addr())
	logger.Debug("WebDAV config: read_timeout=%v write_timeout=%v idle_timeout=%v",
		a.config.ReadTimeout, a.config.WriteTimeout, a.config.IdleTimeout)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("WebDAV shutdown signal received: %v", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		return a.Stop(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			// Stop was called directly; it reports its own outcome.
			return nil
		}
		return fmt.Errorf("WebDAV server failed: %w", err)
	}
}

// Stop drains in-flight requests. Connections still open when ctx expires
// are closed. Safe to call multiple times.
func (a *WebDAVAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}

	a.shutdownOnce.Do(func() {
		logger.Debug("WebDAV shutdown initiated")

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("WebDAV shutdown did not complete: %v - forcing closure", err)
			_ = server.Close()
			a.shutdownErr = fmt.Errorf("WebDAV shutdown timeout: %w", err)
			return
		}
		logger.Info("WebDAV graceful shutdown complete")
	})
	return a.shutdownErr
}

// Ready is closed once the listener is bound.
func (a *WebDAVAdapter) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound address, or nil before Serve has bound it.
func (a *WebDAVAdapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Port returns the configured TCP port.
func (a *WebDAVAdapter) Port() int {
	if a.config.Port < 0 {
		return 0
	}
	return a.config.Port
}

// Protocol returns "WebDAV".
func (a *WebDAVAdapter) Protocol() string {
	return "WebDAV"
}
