package e2e

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/config"
	"github.com/marmos91/dittodav/pkg/registry"
	"github.com/marmos91/dittodav/pkg/server"
)

// TestContext provides a complete testing environment with:
// - A running dittodav server built from a configuration, the same way
//   the start command builds it
// - An HTTP client bound to the WebDAV listener
// - Cleanup mechanisms
type TestContext struct {
	T        *testing.T
	Config   *config.Config
	Server   *server.DittoServer
	Registry *registry.Registry
	Adapter  *webdav.WebDAVAdapter
	BaseURL  string
	Client   *http.Client

	cancel  context.CancelFunc
	done    chan struct{}
	stopped sync.Once
}

// NewTestContext applies defaults to cfg, validates it and starts the
// server on an ephemeral port. The server is stopped when the test ends.
func NewTestContext(t *testing.T, cfg *config.Config) *TestContext {
	t.Helper()

	// Functional tests, not debugging sessions.
	logger.SetLevel("ERROR")

	cfg.Adapters.WebDAV.Enabled = true
	cfg.Adapters.WebDAV.Port = -1
	cfg.Adapters.WebDAV.Address = "127.0.0.1"
	config.ApplyDefaults(cfg)
	require.NoError(t, config.Validate(cfg), "test configuration must be valid")

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{
		T:      t,
		Config: cfg,
		Client: &http.Client{Timeout: 10 * time.Second},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m := config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(ctx, cfg, m)
	require.NoError(t, err)
	tc.Registry = reg

	adapters, err := config.CreateAdapters(cfg, m.HTTP, "e2e")
	require.NoError(t, err)
	dav, ok := adapters[0].(*webdav.WebDAVAdapter)
	require.True(t, ok)
	tc.Adapter = dav

	collector, err := config.CreateCollector(cfg, reg, dav)
	require.NoError(t, err)

	tc.Server = server.New(reg,
		server.WithCollector(collector),
		server.WithShutdownTimeout(5*time.Second),
	)
	require.NoError(t, tc.Server.AddAdapter(dav))

	go func() {
		defer close(tc.done)
		if err := tc.Server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("Server error: %v", err)
		}
	}()

	tc.waitForServer()
	t.Cleanup(tc.Stop)
	return tc
}

// waitForServer waits for the WebDAV listener to be bound.
func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	select {
	case <-tc.Adapter.Ready():
	case <-time.After(10 * time.Second):
		tc.T.Fatal("Timeout waiting for server to start")
	}
	tc.BaseURL = "http://" + tc.Adapter.Addr().String()
}

// Stop shuts the server down and waits until the registry is closed, which
// drains pending notifications. Safe to call multiple times.
func (tc *TestContext) Stop() {
	tc.stopped.Do(func() {
		tc.cancel()
		select {
		case <-tc.done:
		case <-time.After(15 * time.Second):
			tc.T.Error("Timeout waiting for server to stop")
		}
	})
}

// Request describes one WebDAV call.
type Request struct {
	Method string
	Path   string
	Host   string
	Body   string
	Header map[string]string
}

// Response is a fully read response.
type Response struct {
	Status int
	Header http.Header
	Body   string
}

// Do sends r and reads the whole response.
func (tc *TestContext) Do(r Request) *Response {
	tc.T.Helper()

	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}

	req, err := http.NewRequest(r.Method, tc.BaseURL+r.Path, body)
	require.NoError(tc.T, err)
	if r.Host != "" {
		req.Host = r.Host
	}
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}

	resp, err := tc.Client.Do(req)
	require.NoError(tc.T, err, "%s %s", r.Method, r.Path)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(tc.T, err)

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}
}

// Put uploads content to path and returns the status.
func (tc *TestContext) Put(path, content string) int {
	tc.T.Helper()
	return tc.Do(Request{Method: http.MethodPut, Path: path, Body: content}).Status
}

// Get returns the status and body of path.
func (tc *TestContext) Get(path string) (int, string) {
	tc.T.Helper()
	resp := tc.Do(Request{Method: http.MethodGet, Path: path})
	return resp.Status, resp.Body
}

// Mkcol creates a collection and returns the status.
func (tc *TestContext) Mkcol(path string) int {
	tc.T.Helper()
	return tc.Do(Request{Method: "MKCOL", Path: path}).Status
}

// Propfind lists path with the given depth.
func (tc *TestContext) Propfind(path, depth string) *Response {
	tc.T.Helper()
	return tc.Do(Request{Method: "PROPFIND", Path: path, Header: map[string]string{"Depth": depth}})
}
