// Package storage defines the contract between the WebDAV layer and the
// storage backends.
//
// An Adapter turns a path relative to its mount into a Node. A Node is a
// transient view of one path in one backend: it is created for a single
// request and owns nothing beyond an open stream while one is active.
// Directories and files share the Node interface; Info.Kind tells them apart.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Kind discriminates files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// WriteMode selects how OpenWriter treats existing content.
type WriteMode int

const (
	// WriteTruncate replaces the content.
	WriteTruncate WriteMode = iota

	// WriteAppend keeps the content and appends to it.
	WriteAppend
)

// Info describes an existing node.
type Info struct {
	Kind       Kind
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time

	// ContentType is the resolved media type of a file (see
	// ResolveContentType). Empty for directories.
	ContentType string
}

// IsDir reports whether the node is a directory.
func (i *Info) IsDir() bool {
	return i.Kind == KindDirectory
}

// Node is one path inside one adapter.
//
// Thread safety:
// A Node is used by a single request. Distinct nodes for the same path may
// be used concurrently; the backend arbitrates.
type Node interface {
	// Path returns the node path relative to its adapter. Its base is the
	// mount path, so Path().Absolute() is the request path.
	Path() vpath.Path

	// Stat returns the node attributes, or an error wrapping ErrNotFound
	// when the node does not exist.
	Stat(ctx context.Context) (*Info, error)

	// Children lists the immediate children of a directory. Files and
	// missing nodes have no children.
	Children(ctx context.Context) ([]Node, error)

	// Open opens the content for reading.
	Open(ctx context.Context) (io.ReadCloser, error)

	// OpenWriter opens the content for writing, creating the node (and any
	// missing parents) when needed. Content is committed on Close.
	OpenWriter(ctx context.Context, mode WriteMode) (io.WriteCloser, error)

	// Rename moves the node to another path of the same adapter. The new
	// path is relative to the adapter root.
	Rename(ctx context.Context, to vpath.Path) error

	// Delete removes the node. Deleting a missing node is not an error.
	// Directories are expected to be empty.
	Delete(ctx context.Context) error

	// CreateDirectory creates the node as a directory. It succeeds when the
	// directory already exists.
	CreateDirectory(ctx context.Context) error

	// SetContentType overrides the media type reported by Stat.
	SetContentType(contentType string)

	// Save persists pending attribute changes. Backends that write
	// immediately treat it as a no-op.
	Save(ctx context.Context) error
}

// Adapter resolves paths to nodes inside a configured root.
//
// Every node an adapter returns must stay inside the (expanded) root; paths
// escaping it yield ErrOutsideRoot.
type Adapter interface {
	// Get returns the node for path p, relative to the adapter root. vars
	// carries the request variables used by templated roots.
	Get(ctx context.Context, p vpath.Path, vars expand.Vars) (Node, error)

	// Type returns the adapter type name as used in configuration.
	Type() string
}

// Exists reports whether n exists.
func Exists(ctx context.Context, n Node) (bool, error) {
	_, err := n.Stat(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// StatIfExists returns the node attributes, or nil without error when the
// node does not exist.
func StatIfExists(ctx context.Context, n Node) (*Info, error) {
	info, err := n.Stat(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return info, err
}
