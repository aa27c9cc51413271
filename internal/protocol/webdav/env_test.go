package webdav

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/auth/memory"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/registry"
	"github.com/marmos91/dittodav/pkg/repository"
	"github.com/marmos91/dittodav/pkg/storage/local"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/marmos91/dittodav/pkg/storage/object/memclient"
	"github.com/marmos91/dittodav/pkg/vpath"
)

const testHost = "files.test"

// testEnv serves a repository with a local mount at / and an in-memory
// object mount at /bucket.
type testEnv struct {
	t       *testing.T
	root    string
	objects *memclient.Client
	ops     *opCounter
	repo    *repository.Repository
	handler *Handler

	mu      sync.Mutex
	changes [][]string
	closed  bool
}

type envOptions struct {
	gate *auth.Gate
}

func newEnv(t *testing.T, opts ...func(*envOptions)) *testEnv {
	t.Helper()

	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &testEnv{t: t, root: t.TempDir(), objects: memclient.New(), ops: &opCounter{}}

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Changes [][]string `json:"changes"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &p); err == nil {
			e.mu.Lock()
			e.changes = append(e.changes, p.Changes...)
			e.mu.Unlock()
		}
	}))
	t.Cleanup(hook.Close)

	localAdapter, err := local.New(local.Config{Root: e.root})
	require.NoError(t, err)
	objectAdapter, err := object.New("memory", object.Instrument(e.objects, "memory", e.ops), object.Config{Root: "/"})
	require.NoError(t, err)

	bucket, err := repository.NewMount("/bucket", objectAdapter, nil)
	require.NoError(t, err)
	files, err := repository.NewMount("/", localAdapter, map[string]string{"X-Mount": "local"})
	require.NoError(t, err)

	e.repo, err = repository.New(repository.Config{
		Name:     "test",
		Domain:   `^files\.test$`,
		Mounts:   []*repository.Mount{bucket, files},
		Gate:     o.gate,
		Notifier: notify.New("test", notify.Config{URL: hook.URL, FlushInterval: time.Hour}),
	})
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.AddRepository(e.repo))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	e.handler = New(reg, WithVersion("1.2.3"))
	return e
}

// opCounter counts object store calls by operation.
type opCounter struct {
	mu  sync.Mutex
	ops map[string]int
}

func (c *opCounter) ObserveOperation(_, operation string, _ time.Duration, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = make(map[string]int)
	}
	c.ops[operation]++
}

func (c *opCounter) RecordBytes(string, string, int64) {}

func (c *opCounter) count(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[operation]
}

func withGate(url string) func(*envOptions) {
	return func(o *envOptions) {
		o.gate = auth.NewGate(auth.Config{URL: url}, memory.New())
	}
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "http://"+testHost+target, r)
	req.RemoteAddr = "192.0.2.10:40000"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// notifications drains the notifier and returns the recorded changes
// without timestamps. The environment accepts no further notifications.
func (e *testEnv) notifications() [][]string {
	e.t.Helper()

	if !e.closed {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(e.t, e.repo.Close(ctx))
		e.closed = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]string, 0, len(e.changes))
	for _, c := range e.changes {
		out = append(out, c[1:])
	}
	return out
}

func (e *testEnv) writeFile(rel, content string) string {
	e.t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(e.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(e.t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (e *testEnv) mkdir(rel string) {
	e.t.Helper()
	require.NoError(e.t, os.MkdirAll(filepath.Join(e.root, filepath.FromSlash(rel)), 0o755))
}

func (e *testEnv) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(rel)))
	return err == nil
}

func (e *testEnv) readFile(rel string) string {
	e.t.Helper()
	b, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	require.NoError(e.t, err)
	return string(b)
}

// msResponse is a decoded multistatus response entry.
type msResponse struct {
	Href          string    `xml:"DAV: href"`
	Status        string    `xml:"DAV: propstat>status"`
	Collection    *struct{} `xml:"DAV: propstat>prop>resourcetype>collection"`
	ContentLength string    `xml:"DAV: propstat>prop>getcontentlength"`
	ContentType   string    `xml:"DAV: propstat>prop>getcontenttype"`
	CreationDate  string    `xml:"DAV: propstat>prop>creationdate"`
	LastModified  string    `xml:"DAV: propstat>prop>getlastmodified"`
	ETag          string    `xml:"DAV: propstat>prop>getetag"`
}

func parseMultistatus(t *testing.T, body []byte) []msResponse {
	t.Helper()
	var doc struct {
		XMLName   xml.Name     `xml:"DAV: multistatus"`
		Responses []msResponse `xml:"DAV: response"`
	}
	require.NoError(t, xml.Unmarshal(body, &doc))
	return doc.Responses
}

func hrefs(responses []msResponse) []string {
	out := make([]string, 0, len(responses))
	for _, r := range responses {
		out = append(out, r.Href)
	}
	return out
}

func mustPath(s string) vpath.Path {
	return vpath.New(s)
}
