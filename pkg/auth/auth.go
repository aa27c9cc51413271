// Package auth implements the Basic-auth gate that delegates credential
// checks to an external HTTP authority and caches its decisions.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/sync/singleflight"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/expand"
)

const (
	// DefaultTTL is how long granted and denied decisions are reused.
	DefaultTTL = 10 * time.Minute

	// DefaultFailureTTL is how long authority failures are reused, so an
	// unavailable authority is not queried on every request.
	DefaultFailureTTL = 30 * time.Second

	// DefaultTimeout bounds one authority call.
	DefaultTimeout = 10 * time.Second

	// Challenge is the WWW-Authenticate value sent with 401 responses.
	Challenge = "Basic"
)

var (
	// ErrUnauthorized is the root of every refusal. The WebDAV layer maps
	// it to 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedCredentials means no usable Basic Authorization header.
	ErrMalformedCredentials = fmt.Errorf("%w: missing or malformed basic credentials", ErrUnauthorized)

	// ErrDenied means the authority rejected the credentials.
	ErrDenied = fmt.Errorf("%w: denied by authority", ErrUnauthorized)

	// ErrAuthorityFailure means the authority could not decide.
	ErrAuthorityFailure = fmt.Errorf("%w: authority failure", ErrUnauthorized)
)

// Config configures a Gate.
type Config struct {
	// URL is the authority endpoint. {{identification}} and {{password}}
	// are replaced with the query-escaped credentials. Empty disables the
	// gate.
	URL string

	// PublicRead lets GET and HEAD through without credentials.
	PublicRead bool

	// TTL applies to granted and denied decisions.
	TTL time.Duration

	// FailureTTL applies to failed decisions. Zero disables caching of
	// failures.
	FailureTTL time.Duration

	// Timeout bounds a single authority call.
	Timeout time.Duration
}

// Metrics records gate activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// CacheLookup records a decision cache hit or miss.
	CacheLookup(hit bool)

	// AuthorityCall records one call to the authority.
	AuthorityCall(status Status, duration time.Duration)
}

// Option customizes a Gate.
type Option func(*Gate)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gate) { g.client = client }
}

// WithMetrics attaches metrics.
func WithMetrics(m Metrics) Option {
	return func(g *Gate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate authorizes requests of one repository.
//
// Concurrent lookups of the same credentials collapse into one authority
// call; lookups of different credentials run in parallel.
//
// Thread safety:
// Safe for concurrent use.
type Gate struct {
	cfg     Config
	cache   Cache
	client  *http.Client
	metrics Metrics
	now     func() time.Time
	group   singleflight.Group
}

// NewGate creates a gate. Cache keys are derived from credentials and
// address only, so gates talking to different authorities need separate
// caches. A nil cache disables caching.
func NewGate(cfg Config, cache Cache, opts ...Option) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	g := &Gate{
		cfg:     cfg,
		cache:   cache,
		client:  cleanhttp.DefaultPooledClient(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enabled reports whether the gate checks credentials at all.
func (g *Gate) Enabled() bool {
	return g != nil && g.cfg.URL != ""
}

// Authorize decides whether a request may proceed. It returns nil when
// allowed and an error wrapping ErrUnauthorized otherwise.
//
// Parameters:
//   - method: HTTP method, used for the public-read policy
//   - authorization: raw Authorization header
//   - remoteAddr: client address without port, part of the cache key
func (g *Gate) Authorize(ctx context.Context, method, authorization, remoteAddr string) error {
	if !g.Enabled() {
		return nil
	}
	if g.cfg.PublicRead && (method == http.MethodGet || method == http.MethodHead) {
		return nil
	}

	identification, password, ok := ParseBasicAuth(authorization)
	if !ok {
		return ErrMalformedCredentials
	}

	key := CacheKey(identification, password, remoteAddr)

	if entry, ok := g.lookup(key); ok {
		g.metrics.CacheLookup(true)
		return statusError(entry.Status)
	}
	g.metrics.CacheLookup(false)

	result, _, _ := g.group.Do(key, func() (any, error) {
		// A concurrent caller may have stored the decision meanwhile.
		if entry, ok := g.lookup(key); ok {
			return entry.Status, nil
		}

		status := g.query(ctx, identification, password)
		g.store(key, status)
		return status, nil
	})

	return statusError(result.(Status))
}

func (g *Gate) lookup(key string) (Entry, bool) {
	if g.cache == nil {
		return Entry{}, false
	}

	entry, ok := g.cache.Get(key)
	if !ok {
		return Entry{}, false
	}
	if entry.Expired(g.now()) {
		_ = g.cache.Delete(key)
		return Entry{}, false
	}
	return entry, true
}

func (g *Gate) store(key string, status Status) {
	if g.cache == nil {
		return
	}

	ttl := g.cfg.TTL
	if status == StatusFailed {
		ttl = g.cfg.FailureTTL
	}
	if ttl <= 0 {
		return
	}

	if err := g.cache.Put(key, Entry{Status: status, ExpiresAt: g.now().Add(ttl)}); err != nil {
		logger.Warn("Auth cache write failed: %v", err)
	}
}

// query asks the authority. The call is detached from the request
// cancellation because other requests may be waiting on the same result.
func (g *Gate) query(ctx context.Context, identification, password string) Status {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.Timeout)
	defer cancel()

	vars := expand.Vars{"identification": identification, "password": password}
	target := vars.ExpandFunc(g.cfg.URL, url.QueryEscape)

	start := time.Now()
	status := g.post(callCtx, target)
	g.metrics.AuthorityCall(status, time.Since(start))

	logger.Debug("Auth authority decision for %q: %s", identification, status)
	return status
}

func (g *Gate) post(ctx context.Context, target string) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		logger.Error("Auth authority request invalid: %v", err)
		return StatusFailed
	}

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Error("Auth authority unreachable: %v", err)
		return StatusFailed
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return StatusGranted
	case http.StatusUnauthorized, http.StatusForbidden:
		return StatusDenied
	default:
		logger.Error("Auth authority answered unexpected status %d", resp.StatusCode)
		return StatusFailed
	}
}

func statusError(s Status) error {
	switch s {
	case StatusGranted:
		return nil
	case StatusDenied:
		return ErrDenied
	default:
		return ErrAuthorityFailure
	}
}

// ParseBasicAuth extracts credentials from a Basic Authorization header
// value.
func ParseBasicAuth(header string) (identification, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}

	identification, password, ok = strings.Cut(string(decoded), ":")
	if !ok || identification == "" {
		return "", "", false
	}
	return identification, password, true
}

type noopMetrics struct{}

func (noopMetrics) CacheLookup(bool)                    {}
func (noopMetrics) AuthorityCall(Status, time.Duration) {}
