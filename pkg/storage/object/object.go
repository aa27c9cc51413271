// Package object implements the storage adapter for flat-key object stores
// (S3 and compatible services).
//
// Object stores have no directories. A path is a folder when at least one
// key exists below it ("a/b" is a folder when "a/b/c" exists) and a file
// otherwise. Empty folders are kept alive by a zero-byte placeholder object
// named PlaceholderName, which is hidden from listings.
package object

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// PlaceholderName is the object written to materialize an empty folder.
const PlaceholderName = ".folder"

// Config configures the key space of an object adapter.
type Config struct {
	// Root is the key prefix served by the adapter, written as a rooted path
	// ("/" for the whole bucket). It may contain {{name}} placeholders.
	Root string
}

// Adapter resolves paths to objects of one bucket.
//
// Thread safety:
// Safe for concurrent use if the Client is.
type Adapter struct {
	typeName string
	client   Client
	root     string

	// created is reported as the time of the adapter root, which has no
	// object of its own.
	created time.Time
}

// New creates an object adapter. typeName is reported by Type, e.g. "s3".
func New(typeName string, client Client, cfg Config) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("object adapter: client is required")
	}

	root := cfg.Root
	if root == "" {
		root = vpath.Separator
	}
	if !strings.HasPrefix(root, vpath.Separator) {
		root = vpath.Separator + root
	}

	return &Adapter{
		typeName: typeName,
		client:   client,
		root:     root,
		created:  time.Now(),
	}, nil
}

// Type implements storage.Adapter.
func (a *Adapter) Type() string {
	return a.typeName
}

// Get implements storage.Adapter.
//
// The path is classified with a single one-key listing below it: any key
// under "<key>/" makes it a folder, otherwise it is a (possibly missing)
// file. The adapter root is always a folder, even when no key exists yet.
func (a *Adapter) Get(ctx context.Context, p vpath.Path, vars expand.Vars) (storage.Node, error) {
	expanded, err := vars.ExpandPath(a.root)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w: %w", a.root, storage.ErrOutsideRoot, err)
	}
	root := vpath.New(expanded).Clean()

	full, err := resolve(root, p)
	if err != nil {
		return nil, err
	}

	key := keyOf(full)
	if full.Equal(root) {
		return a.newFolder(root, p, key, nil), nil
	}

	page, err := a.client.List(ctx, key+vpath.Separator, "", 1)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", key, err)
	}
	if len(page.Objects) > 0 {
		return a.newFolder(root, p, key, &page.Objects[0]), nil
	}

	return a.newFile(root, p, key, nil), nil
}

func (a *Adapter) newFile(root, p vpath.Path, key string, obj *Object) *FileNode {
	n := &FileNode{adapter: a, root: root, path: p, key: key}
	if obj != nil {
		n.cached = n.infoFrom(obj)
	}
	return n
}

func (a *Adapter) newFolder(root, p vpath.Path, key string, seen *Object) *FolderNode {
	n := &FolderNode{adapter: a, root: root, path: p, key: key}
	if seen != nil {
		n.cached = folderInfo(seen.LastModified)
	}
	return n
}

// resolve joins p below root and enforces the root boundary. A path whose
// ".." components climb above its start is rejected even when the root is
// the bucket top.
func resolve(root, p vpath.Path) (vpath.Path, error) {
	rel := p.Clean()
	if rel.First() == ".." {
		return vpath.Path{}, fmt.Errorf("%s: %w", p, storage.ErrOutsideRoot)
	}

	full := root.Join(rel)
	if !full.HasPrefix(root) {
		return vpath.Path{}, fmt.Errorf("%s: %w", p, storage.ErrOutsideRoot)
	}
	return full, nil
}

// keyOf renders a rooted path as an object key (no leading separator).
func keyOf(full vpath.Path) string {
	return strings.TrimPrefix(full.String(), vpath.Separator)
}

// folderPrefix is the listing prefix of everything below key.
func folderPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + vpath.Separator
}

// wrapError maps client errors onto storage sentinels.
func wrapError(op, key string, err error) error {
	if errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("%s %s: %w", op, key, storage.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
