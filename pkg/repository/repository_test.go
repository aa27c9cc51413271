package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/auth/memory"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/storage/local"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/marmos91/dittodav/pkg/storage/object/memclient"
	"github.com/marmos91/dittodav/pkg/vpath"
)

func localMount(t *testing.T, at, root string, headers map[string]string) *Mount {
	t.Helper()
	a, err := local.New(local.Config{Root: root, Autocreate: true})
	require.NoError(t, err)
	m, err := NewMount(at, a, headers)
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Domain: ".*"})
	assert.Error(t, err)

	_, err = New(Config{Name: "r", Domain: "("})
	assert.Error(t, err)

	_, err = NewMount("relative", nil, nil)
	assert.Error(t, err)
}

func TestMatchDomain(t *testing.T) {
	r, err := New(Config{Name: "sites", Domain: `^(?P<site>[a-z]+)\.example\.com$`})
	require.NoError(t, err)

	rc := NewRequestContext("blog.example.com:8080", "10.0.0.1:5555", nil)
	assert.True(t, r.MatchDomain("blog.example.com", rc))
	assert.Equal(t, "blog", rc.Vars["site"])
	assert.Equal(t, "blog.example.com", rc.Vars["host"])
	assert.Equal(t, "10.0.0.1", rc.Vars["remote_addr"])

	miss := NewRequestContext("other.org", "10.0.0.1", nil)
	assert.False(t, r.MatchDomain("other.org", miss))
	assert.NotContains(t, miss.Vars, "site")
}

func TestGetMountSelection(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(first, "a.txt"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(second, "a.txt"), []byte("second"), 0o644))

	r, err := New(Config{
		Name:   "r",
		Domain: ".*",
		Mounts: []*Mount{
			localMount(t, "/files", second, map[string]string{"Cache-Control": "no-store"}),
			localMount(t, "/", first, nil),
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("FirstMatchingMountWins", func(t *testing.T) {
		rc := NewRequestContext("h", "a", nil)
		n, err := r.Get(ctx, vpath.New("/files/a.txt"), rc)
		require.NoError(t, err)
		assert.Equal(t, "second", read(t, n))
		assert.Equal(t, "/files/a.txt", n.Path().Absolute().String())
		assert.Equal(t, "no-store", rc.Header.Get("Cache-Control"))
	})

	t.Run("PrefixIsStructural", func(t *testing.T) {
		rc := NewRequestContext("h", "a", nil)
		n, err := r.Get(ctx, vpath.New("/filesystem/a.txt"), rc)
		require.NoError(t, err)
		assert.Equal(t, "/filesystem/a.txt", n.Path().Absolute().String())
		assert.Empty(t, rc.Header.Get("Cache-Control"))

		ok, err := storage.Exists(ctx, n)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MountPointIsDirectory", func(t *testing.T) {
		n, err := r.Get(ctx, vpath.New("/files"), nil)
		require.NoError(t, err)
		info, err := n.Stat(ctx)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("RelativePathDoesNotResolve", func(t *testing.T) {
		_, err := r.Get(ctx, vpath.New("files/a.txt"), nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("EscapeIsRejected", func(t *testing.T) {
		_, err := r.Get(ctx, vpath.New("/files/../../etc/passwd"), nil)
		assert.ErrorIs(t, err, storage.ErrOutsideRoot)
	})
}

func TestGetWithTemplatedObjectRoot(t *testing.T) {
	client := memclient.New()
	a, err := object.New("memory", client, object.Config{Root: "/sites/{{site}}"})
	require.NoError(t, err)
	m, err := NewMount("/", a, nil)
	require.NoError(t, err)

	r, err := New(Config{Name: "r", Domain: `^(?P<site>\w+)\.local$`, Mounts: []*Mount{m}})
	require.NoError(t, err)

	rc := NewRequestContext("alpha.local", "1.1.1.1", nil)
	require.True(t, r.MatchDomain("alpha.local", rc))

	n, err := r.Get(context.Background(), vpath.New("/doc.txt"), rc)
	require.NoError(t, err)

	w, err := n.OpenWriter(context.Background(), storage.WriteTruncate)
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Contains(t, client.Keys(), "sites/alpha/doc.txt")
}

func TestGetRejectsEscapingDomainCaptures(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "private.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sites", "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sites", "other", "x.txt"), []byte("other tenant"), 0o644))

	tests := []struct {
		name   string
		domain string
		host   string
		path   string
	}{
		{"dot-dot capture", `^(?P<site>.+)\.example\.com$`, "...example.com", "/private.txt"},
		{"pattern without the group", `^[a-z]+\.example\.com$`, "acme.example.com", "/other/x.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := localMount(t, "/", filepath.Join(base, "sites", "{{site}}"), nil)
			r, err := New(Config{Name: "sites", Domain: tt.domain, Mounts: []*Mount{m}})
			require.NoError(t, err)

			rc := NewRequestContext(tt.host, "10.0.0.1", nil)
			require.True(t, r.MatchDomain(tt.host, rc))

			n, err := r.Get(context.Background(), vpath.New(tt.path), rc)
			assert.Nil(t, n)
			assert.ErrorIs(t, err, storage.ErrOutsideRoot)
		})
	}
}

func TestAuthorize(t *testing.T) {
	var calls int
	var mu sync.Mutex
	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		if r.URL.Query().Get("u") == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer authority.Close()

	gate := auth.NewGate(auth.Config{URL: authority.URL + "?u={{identification}}&p={{password}}"}, memory.New())
	r, err := New(Config{Name: "r", Domain: ".*", Gate: gate})
	require.NoError(t, err)

	request := func(user string) *http.Request {
		req := httptest.NewRequest("PROPFIND", "/", nil)
		if user != "" {
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":pw")))
		}
		return req
	}

	ran := false
	err = r.WithAuthentication(context.Background(), request("good"), NewRequestContext("h", "1.2.3.4:1", nil), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	for _, user := range []string{"", "bad"} {
		ran = false
		err = r.WithAuthentication(context.Background(), request(user), NewRequestContext("h", "1.2.3.4:1", nil), func() error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		assert.False(t, ran)
	}

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestNotifyForwardsPaths(t *testing.T) {
	bodies := make(chan []byte, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
	}))
	defer hook.Close()

	n := notify.New("r", notify.Config{URL: hook.URL, FlushInterval: time.Hour})
	r, err := New(Config{Name: "r", Domain: ".*", Notifier: n})
	require.NoError(t, err)

	r.Notify(notify.ActionRename, vpath.New("/a"), vpath.New("/b"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	var p struct {
		Changes [][]string `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(<-bodies, &p))
	require.Len(t, p.Changes, 1)
	assert.Equal(t, []string{"rename", "/a", "/b"}, p.Changes[0][1:])
}

func TestNilCollaborators(t *testing.T) {
	r, err := New(Config{Name: "r", Domain: ".*"})
	require.NoError(t, err)

	assert.NoError(t, r.Authorize(context.Background(), "PUT", "", nil))
	r.Notify(notify.ActionCreate, vpath.New("/x"))
	assert.NoError(t, r.Close(context.Background()))
}

func read(t *testing.T, n storage.Node) string {
	t.Helper()
	rc, err := n.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}
