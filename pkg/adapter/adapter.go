package adapter

import (
	"context"

	"github.com/marmos91/dittodav/pkg/registry"
)

// Adapter represents a protocol listener managed by the server.
//
// Every adapter serves the same registry of repositories; the protocol it
// speaks on the wire is its own business.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Registry injection: SetRegistry() provides the repositories to serve
//  3. Startup: Serve() binds the listener and blocks until shutdown
//  4. Shutdown: Stop() drains in-flight requests within the context deadline
//
// Thread safety:
// Implementations must be safe for concurrent use. SetRegistry() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must stop accepting requests,
	// let in-flight requests finish within the configured shutdown timeout
	// and return nil.
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetRegistry injects the repositories to serve.
	//
	// Called exactly once by the server before Serve().
	SetRegistry(reg *registry.Registry)

	// Stop initiates graceful shutdown.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve(), and must force-close remaining connections when ctx expires.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and
	// metrics, e.g. "WebDAV".
	Protocol() string

	// Port returns the configured TCP port. Returns 0 when the port is
	// assigned by the kernel.
	Port() int
}
