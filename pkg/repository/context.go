package repository

import (
	"net"
	"net/http"

	"github.com/marmos91/dittodav/pkg/expand"
)

// RequestContext carries per-request state shared between the protocol
// handler, the repository and the adapters.
type RequestContext struct {
	// Vars feeds root templates. It always contains "host" and
	// "remote_addr"; domain captures are added on match.
	Vars expand.Vars

	// Header receives response headers contributed by mounts.
	Header http.Header
}

// NewRequestContext builds the context of one request. remoteAddr may carry
// a port, which is stripped.
func NewRequestContext(host, remoteAddr string, header http.Header) *RequestContext {
	if header == nil {
		header = http.Header{}
	}
	return &RequestContext{
		Vars: expand.Vars{
			"host":        StripPort(host),
			"remote_addr": StripPort(remoteAddr),
		},
		Header: header,
	}
}

// StripPort removes a trailing :port from an address, handling bracketed
// IPv6 literals.
func StripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
