// Package local implements the storage adapter backed by a local directory
// tree.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Type is the configuration name of this adapter.
const Type = "local"

const (
	dirPerm  = 0755
	filePerm = 0644
)

// Config configures a local adapter.
type Config struct {
	// Root is the directory served by the adapter. It may contain
	// {{name}} placeholders expanded from request variables, e.g.
	// "/srv/dav/{{site}}".
	Root string `mapstructure:"root" validate:"required" json:"root"`

	// Autocreate creates the expanded root on first access.
	Autocreate bool `mapstructure:"autocreate" json:"autocreate,omitempty"`
}

// Adapter serves nodes below a (possibly templated) root directory.
//
// Thread safety:
// Safe for concurrent use. The adapter holds no mutable state.
type Adapter struct {
	root       string
	autocreate bool
}

// New creates a local adapter.
//
// Returns an error when the root template is empty or not absolute.
func New(cfg Config) (*Adapter, error) {
	if cfg.Root == "" {
		return nil, errors.New("local adapter: root is required")
	}
	if !filepath.IsAbs(cfg.Root) {
		return nil, fmt.Errorf("local adapter: root %q must be absolute", cfg.Root)
	}

	return &Adapter{
		root:       cfg.Root,
		autocreate: cfg.Autocreate,
	}, nil
}

// Type implements storage.Adapter.
func (a *Adapter) Type() string {
	return Type
}

// Get implements storage.Adapter.
//
// The root template is expanded against vars, created when autocreate is
// set, and joined with p. Every substituted variable must be a single path
// component, and the joined path, cleaned lexically, must still have the root
// as a structural prefix. Otherwise ErrOutsideRoot is returned.
func (a *Adapter) Get(ctx context.Context, p vpath.Path, vars expand.Vars) (storage.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expanded, err := vars.ExpandPath(a.root)
	if err != nil {
		logger.Debug("Local adapter: root %s rejected: %v", a.root, err)
		return nil, fmt.Errorf("root %s: %w: %w", a.root, storage.ErrOutsideRoot, err)
	}
	root := vpath.New(filepath.Clean(expanded))

	if a.autocreate {
		if err := os.MkdirAll(root.String(), dirPerm); err != nil {
			return nil, fmt.Errorf("create root %s: %w", root, err)
		}
	}

	local, err := resolve(root, p)
	if err != nil {
		logger.Debug("Local adapter: %q escapes root %s", p.String(), root)
		return nil, err
	}

	return &Node{
		root:  root,
		path:  p,
		local: local,
	}, nil
}

// resolve maps an adapter-relative path below root, enforcing the root
// boundary.
func resolve(root, p vpath.Path) (vpath.Path, error) {
	rel := p.Clean()
	if rel.First() == ".." {
		return vpath.Path{}, fmt.Errorf("%s: %w", p, storage.ErrOutsideRoot)
	}

	local := root.Join(rel)
	if !local.HasPrefix(root) {
		return vpath.Path{}, fmt.Errorf("%s: %w", p, storage.ErrOutsideRoot)
	}
	return local, nil
}

// wrapError translates filesystem errors into storage sentinels while
// keeping the original error in the chain.
func wrapError(op string, p vpath.Path, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s %s: %w: %w", op, p, storage.ErrNotFound, err)
	case storage.IsPermission(err):
		return fmt.Errorf("%s %s: %w: %w", op, p, storage.ErrPermission, err)
	default:
		return fmt.Errorf("%s %s: %w", op, p, err)
	}
}
