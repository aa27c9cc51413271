package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// FolderNode is a key prefix with at least one object below it.
type FolderNode struct {
	adapter *Adapter
	root    vpath.Path
	path    vpath.Path
	key     string
	cached  *storage.Info
}

var _ storage.Node = (*FolderNode)(nil)

// Path implements storage.Node.
func (n *FolderNode) Path() vpath.Path {
	return n.path
}

// Key returns the folder key (without trailing separator).
func (n *FolderNode) Key() string {
	return n.key
}

// Stat implements storage.Node. A folder exists while at least one key is
// stored below it; the adapter root always exists.
func (n *FolderNode) Stat(ctx context.Context) (*storage.Info, error) {
	if n.cached != nil {
		info := *n.cached
		return &info, nil
	}

	if n.isRoot() {
		n.cached = folderInfo(n.adapter.created)
		info := *n.cached
		return &info, nil
	}

	page, err := n.adapter.client.List(ctx, folderPrefix(n.key), "", 1)
	if err != nil {
		return nil, wrapError("stat", n.key, err)
	}
	if len(page.Objects) == 0 {
		return nil, fmt.Errorf("stat %s: %w", n.key, storage.ErrNotFound)
	}

	n.cached = folderInfo(page.Objects[0].LastModified)
	info := *n.cached
	return &info, nil
}

func (n *FolderNode) isRoot() bool {
	full, err := resolve(n.root, n.path)
	return err == nil && full.Equal(n.root)
}

// child accumulates what a listing revealed about one immediate child.
type child struct {
	file   *Object
	folder *Object
}

// Children implements storage.Node.
//
// Every key below the folder is listed, one page at a time, and grouped by
// its first component. A name with any deeper key is a folder; the
// placeholder object is hidden.
func (n *FolderNode) Children(ctx context.Context) ([]storage.Node, error) {
	prefix := folderPrefix(n.key)

	seen := make(map[string]*child)
	var order []string

	err := n.walk(ctx, prefix, func(obj Object) {
		rest := strings.TrimPrefix(obj.Key, prefix)
		name, _, nested := strings.Cut(rest, vpath.Separator)
		if name == "" || (!nested && name == PlaceholderName) {
			return
		}

		c, ok := seen[name]
		if !ok {
			c = &child{}
			seen[name] = c
			order = append(order, name)
		}

		o := obj
		if nested {
			if c.folder == nil || o.LastModified.After(c.folder.LastModified) {
				c.folder = &o
			}
		} else {
			c.file = &o
		}
	})
	if err != nil {
		return nil, err
	}

	children := make([]storage.Node, 0, len(order))
	for _, name := range order {
		c := seen[name]
		childPath := n.path.Child(name)
		childKey := prefix + name

		if c.folder != nil {
			children = append(children, n.adapter.newFolder(n.root, childPath, childKey, c.folder))
			continue
		}
		children = append(children, n.adapter.newFile(n.root, childPath, childKey, c.file))
	}

	return children, nil
}

// walk calls fn for every key under prefix, following continuation tokens
// until the listing is exhausted.
func (n *FolderNode) walk(ctx context.Context, prefix string, fn func(Object)) error {
	token := ""
	pages := 0
	for {
		page, err := n.adapter.client.List(ctx, prefix, token, MaxListKeys)
		if err != nil {
			return wrapError("list", prefix, err)
		}
		pages++

		for _, obj := range page.Objects {
			fn(obj)
		}

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	if pages > 1 {
		logger.Debug("Object adapter: listed %q in %d pages", prefix, pages)
	}
	return nil
}

// Open implements storage.Node.
func (n *FolderNode) Open(context.Context) (io.ReadCloser, error) {
	return nil, fmt.Errorf("open %s: %w", n.key, storage.ErrIsDirectory)
}

// OpenWriter implements storage.Node.
func (n *FolderNode) OpenWriter(context.Context, storage.WriteMode) (io.WriteCloser, error) {
	return nil, fmt.Errorf("write %s: %w", n.key, storage.ErrIsDirectory)
}

// Rename implements storage.Node by copying every key below the folder to
// the new prefix and deleting the originals. It is not atomic: a failure
// part way leaves both prefixes populated.
func (n *FolderNode) Rename(ctx context.Context, to vpath.Path) error {
	if n.isRoot() {
		return fmt.Errorf("rename adapter root: %w", storage.ErrPermission)
	}

	full, err := resolve(n.root, to)
	if err != nil {
		return err
	}
	dst := keyOf(full)
	if strings.HasPrefix(dst+vpath.Separator, folderPrefix(n.key)) {
		return fmt.Errorf("rename %s into itself: %w", n.key, storage.ErrExists)
	}

	srcPrefix := folderPrefix(n.key)
	dstPrefix := folderPrefix(dst)

	var keys []string
	if err := n.walk(ctx, srcPrefix, func(obj Object) { keys = append(keys, obj.Key) }); err != nil {
		return err
	}

	for _, key := range keys {
		target := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if err := n.adapter.client.Copy(ctx, key, target, ""); err != nil {
			return wrapError("copy", key, err)
		}
	}
	for _, key := range keys {
		if err := n.adapter.client.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			return wrapError("delete", key, err)
		}
	}

	logger.Debug("Object adapter: moved %d keys from %s to %s", len(keys), srcPrefix, dstPrefix)

	n.path = to
	n.key = dst
	n.cached = nil
	return nil
}

// Delete implements storage.Node. Only the placeholder belongs to the
// folder itself; children are deleted by the caller first.
func (n *FolderNode) Delete(ctx context.Context) error {
	placeholder := folderPrefix(n.key) + PlaceholderName
	if err := n.adapter.client.Delete(ctx, placeholder); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return wrapError("delete", placeholder, err)
	}
	n.cached = nil
	return nil
}

// CreateDirectory implements storage.Node. The folder already exists.
func (n *FolderNode) CreateDirectory(ctx context.Context) error {
	return ctx.Err()
}

// SetContentType implements storage.Node. Folders have no media type.
func (n *FolderNode) SetContentType(string) {}

// Save implements storage.Node.
func (n *FolderNode) Save(ctx context.Context) error {
	return ctx.Err()
}
