package metrics

import (
	"time"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage/object"
)

// HTTPMetrics records WebDAV listener traffic.
//
// Implementations must be safe for concurrent use.
type HTTPMetrics interface {
	// RecordRequest records a completed request with its final status.
	RecordRequest(method string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for method.
	RecordRequestEnd(method string)

	// RecordBytesTransferred adds request ("in") or response ("out") body bytes.
	RecordBytesTransferred(direction string, bytes int64)

	// RecordRateLimited counts a request rejected by the limiter. scope is
	// "global" or "client".
	RecordRateLimited(scope string)
}

// The remaining hooks are declared next to the code that calls them.
type (
	AuthMetrics   = auth.Metrics
	NotifyMetrics = notify.Metrics
	ObjectMetrics = object.Metrics
)

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// NewNoopAuthMetrics returns an AuthMetrics that records nothing.
func NewNoopAuthMetrics() AuthMetrics {
	return noopAuthMetrics{}
}

// NewNoopNotifyMetrics returns a NotifyMetrics that records nothing.
func NewNoopNotifyMetrics() NotifyMetrics {
	return noopNotifyMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRequestStart(method string)                                {}
func (noopHTTPMetrics) RecordRequestEnd(method string)                                  {}
func (noopHTTPMetrics) RecordBytesTransferred(direction string, bytes int64)            {}
func (noopHTTPMetrics) RecordRateLimited(scope string)                                  {}

type noopAuthMetrics struct{}

func (noopAuthMetrics) CacheLookup(hit bool)                                     {}
func (noopAuthMetrics) AuthorityCall(status auth.Status, duration time.Duration) {}

type noopNotifyMetrics struct{}

func (noopNotifyMetrics) EventQueued(repository string)                                       {}
func (noopNotifyMetrics) BatchFinished(repository string, events int, outcome notify.Outcome) {}
func (noopNotifyMetrics) RequestRetried(repository string)                                    {}
