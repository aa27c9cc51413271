package object_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/marmos91/dittodav/pkg/storage/object/memclient"
	storagetesting "github.com/marmos91/dittodav/pkg/storage/testing"
	"github.com/marmos91/dittodav/pkg/vpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T, client object.Client, root string) *object.Adapter {
	t.Helper()
	adapter, err := object.New("memory", client, object.Config{Root: root})
	require.NoError(t, err)
	return adapter
}

func put(t *testing.T, client object.Client, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, client.Put(context.Background(), key, []byte(key), ""))
	}
}

func TestObjectAdapter(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newAdapter(t, memclient.New(), "/")
		},
	}
	suite.Run(t)
}

func TestObjectAdapter_TemplatedRoot(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newAdapter(t, memclient.New(), "/tenants/{{site}}")
		},
		Vars: expand.Vars{"site": "acme"},
	}
	suite.Run(t)
}

func TestObjectAdapter_KeysUseExpandedRoot(t *testing.T) {
	client := memclient.New()
	adapter := newAdapter(t, client, "/tenants/{{site}}")

	node, err := adapter.Get(context.Background(), vpath.New("docs/readme.md"), expand.Vars{"site": "acme"})
	require.NoError(t, err)

	w, err := node.OpenWriter(context.Background(), storage.WriteTruncate)
	require.NoError(t, err)
	_, _ = w.Write([]byte("hi"))
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"tenants/acme/docs/readme.md"}, client.Keys())
}

func TestObjectAdapter_UnsafeRootVariables(t *testing.T) {
	client := memclient.New()
	put(t, client, "secret.txt", "tenants/other/x.txt")
	adapter := newAdapter(t, client, "/tenants/{{site}}")

	tests := []struct {
		name string
		vars expand.Vars
		path string
	}{
		{"parent capture", expand.Vars{"site": ".."}, "secret.txt"},
		{"missing capture", expand.Vars{}, "other/x.txt"},
		{"capture with separator", expand.Vars{"site": "a/.."}, "other/x.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := adapter.Get(context.Background(), vpath.New(tt.path), tt.vars)
			assert.Nil(t, node)
			assert.ErrorIs(t, err, storage.ErrOutsideRoot)
		})
	}
}

func TestObjectAdapter_RootTimesAreStable(t *testing.T) {
	adapter := newAdapter(t, memclient.New(), "/")
	ctx := context.Background()

	stat := func() *storage.Info {
		node, err := adapter.Get(ctx, vpath.New(""), nil)
		require.NoError(t, err)
		info, err := node.Stat(ctx)
		require.NoError(t, err)
		return info
	}

	first := stat()
	time.Sleep(20 * time.Millisecond)
	second := stat()

	assert.True(t, first.IsDir())
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.ModifiedAt, second.ModifiedAt)
}

func TestObjectAdapter_Classification(t *testing.T) {
	client := memclient.New()
	put(t, client, "a/b/c", "a/b-1", "a/b.txt")
	adapter := newAdapter(t, client, "/")

	tests := []struct {
		path string
		kind storage.Kind
	}{
		{"a", storage.KindDirectory},
		{"a/b", storage.KindDirectory},
		{"a/b/c", storage.KindFile},
		{"a/b.txt", storage.KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			node, err := adapter.Get(context.Background(), vpath.New(tt.path), nil)
			require.NoError(t, err)

			info, err := node.Stat(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.kind, info.Kind)
		})
	}
}

func TestObjectAdapter_ChildrenPagePastListingLimit(t *testing.T) {
	client := memclient.New()
	const files = 2*object.MaxListKeys + 500
	for i := 0; i < files; i++ {
		put(t, client, fmt.Sprintf("big/file-%05d", i))
	}
	put(t, client, "big/sub/one", "big/sub/two")
	adapter := newAdapter(t, client, "/")

	node, err := adapter.Get(context.Background(), vpath.New("big"), nil)
	require.NoError(t, err)

	children, err := node.Children(context.Background())
	require.NoError(t, err)
	require.Len(t, children, files+1)

	seen := make(map[string]bool, len(children))
	folders := 0
	for _, child := range children {
		name := child.Path().Last()
		assert.False(t, seen[name], "duplicate child %s", name)
		seen[name] = true

		info, err := child.Stat(context.Background())
		require.NoError(t, err)
		if info.IsDir() {
			folders++
		}
	}
	assert.Equal(t, 1, folders)
	assert.True(t, seen["sub"])
	assert.True(t, seen[fmt.Sprintf("file-%05d", files-1)])
}

func TestObjectAdapter_PlaceholderHiddenAndRemoved(t *testing.T) {
	client := memclient.New()
	adapter := newAdapter(t, client, "/")
	ctx := context.Background()

	node, err := adapter.Get(ctx, vpath.New("empty"), nil)
	require.NoError(t, err)
	require.NoError(t, node.CreateDirectory(ctx))
	assert.Equal(t, []string{"empty/" + object.PlaceholderName}, client.Keys())

	folder, err := adapter.Get(ctx, vpath.New("empty"), nil)
	require.NoError(t, err)
	children, err := folder.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)

	require.NoError(t, folder.Delete(ctx))
	assert.Empty(t, client.Keys())
}

func TestObjectAdapter_CreateDirectoryOverFile(t *testing.T) {
	client := memclient.New()
	put(t, client, "file")
	adapter := newAdapter(t, client, "/")

	node, err := adapter.Get(context.Background(), vpath.New("file"), nil)
	require.NoError(t, err)

	err = node.CreateDirectory(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotDirectory)
}

func TestObjectAdapter_RenameFolderMovesEveryKey(t *testing.T) {
	client := memclient.New()
	put(t, client, "src/a", "src/deep/b", "src/"+object.PlaceholderName, "srcfile")
	adapter := newAdapter(t, client, "/")

	node, err := adapter.Get(context.Background(), vpath.New("src"), nil)
	require.NoError(t, err)
	require.NoError(t, node.Rename(context.Background(), vpath.New("dst")))

	assert.Equal(t, []string{"dst/" + object.PlaceholderName, "dst/a", "dst/deep/b", "srcfile"}, client.Keys())
}

func TestObjectAdapter_RenameFolderIntoItself(t *testing.T) {
	client := memclient.New()
	put(t, client, "src/a")
	adapter := newAdapter(t, client, "/")

	node, err := adapter.Get(context.Background(), vpath.New("src"), nil)
	require.NoError(t, err)

	err = node.Rename(context.Background(), vpath.New("src/inner"))
	assert.ErrorIs(t, err, storage.ErrExists)
	assert.Equal(t, []string{"src/a"}, client.Keys())
}

func TestObjectAdapter_SaveRewritesContentType(t *testing.T) {
	client := memclient.New()
	put(t, client, "report.bin")
	adapter := newAdapter(t, client, "/")
	ctx := context.Background()

	node, err := adapter.Get(ctx, vpath.New("report.bin"), nil)
	require.NoError(t, err)
	node.SetContentType("application/pdf")
	require.NoError(t, node.Save(ctx))

	obj, err := client.Head(ctx, "report.bin")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", obj.ContentType)
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []string
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(backend, operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ops = append(m.ops, backend+":"+operation+":"+status)
}

func (m *recordingMetrics) RecordBytes(backend, operation string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[operation] += n
}

func TestInstrument(t *testing.T) {
	metrics := &recordingMetrics{bytes: map[string]int64{}}
	client := object.Instrument(memclient.New(), "memory", metrics)
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, "k", []byte("hello"), "text/plain"))
	body, err := client.Get(ctx, "k")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _ := body.Read(buf)
	require.NoError(t, body.Close())
	_, err = client.Head(ctx, "missing")
	assert.ErrorIs(t, err, object.ErrObjectNotFound)

	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"memory:put:ok", "memory:get:ok", "memory:head:ok"}, metrics.ops)
	assert.Equal(t, int64(5), metrics.bytes["put"])
	assert.Equal(t, int64(5), metrics.bytes["get"])
}

func TestInstrument_NilMetrics(t *testing.T) {
	client := memclient.New()
	assert.Same(t, client, object.Instrument(client, "memory", nil))
}
