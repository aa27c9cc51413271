package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Mount binds an adapter to an absolute path inside a repository.
type Mount struct {
	path    vpath.Path
	adapter storage.Adapter
	headers map[string]string
}

// NewMount creates a mount. path must be absolute.
func NewMount(path string, adapter storage.Adapter, headers map[string]string) (*Mount, error) {
	p := vpath.New(path)
	if !p.IsAbsolute() {
		return nil, fmt.Errorf("mount path %q must be absolute", path)
	}
	if adapter == nil {
		return nil, fmt.Errorf("mount %q has no adapter", path)
	}

	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}

	return &Mount{path: p, adapter: adapter, headers: copied}, nil
}

// Path returns the mount point.
func (m *Mount) Path() vpath.Path { return m.path }

// Adapter returns the mounted adapter.
func (m *Mount) Adapter() storage.Adapter { return m.adapter }

// Matches reports whether p is the mount point or lies below it.
func (m *Mount) Matches(p vpath.Path) bool {
	return p.HasPrefix(m.path)
}

// get resolves the remainder of p below the mount. The mount headers are
// applied whenever the adapter returns a node.
func (m *Mount) get(ctx context.Context, p vpath.Path, vars expand.Vars, header http.Header) (storage.Node, error) {
	rel, ok := p.WithoutPrefix(m.path)
	if !ok {
		return nil, storage.ErrNotFound
	}

	node, err := m.adapter.Get(ctx, rel, vars)
	if err != nil {
		return nil, err
	}

	for k, v := range m.headers {
		header.Set(k, v)
	}
	return node, nil
}
