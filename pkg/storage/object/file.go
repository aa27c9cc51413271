package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// FileNode is a single object.
type FileNode struct {
	adapter *Adapter
	root    vpath.Path
	path    vpath.Path
	key     string

	// contentType is the override set with SetContentType; dirty marks an
	// override that has not reached the store yet.
	contentType string
	dirty       bool

	// cached holds attributes learned from a listing or the last write.
	cached *storage.Info
}

var _ storage.Node = (*FileNode)(nil)

// Path implements storage.Node.
func (n *FileNode) Path() vpath.Path {
	return n.path
}

// Key returns the object key.
func (n *FileNode) Key() string {
	return n.key
}

func (n *FileNode) infoFrom(obj *Object) *storage.Info {
	return &storage.Info{
		Kind:        storage.KindFile,
		Size:        obj.Size,
		CreatedAt:   obj.LastModified,
		ModifiedAt:  obj.LastModified,
		ContentType: storage.ResolveContentType(n.contentType, obj.ContentType, n.key),
	}
}

// Stat implements storage.Node.
func (n *FileNode) Stat(ctx context.Context) (*storage.Info, error) {
	if n.cached != nil {
		info := *n.cached
		if n.contentType != "" {
			info.ContentType = n.contentType
		}
		return &info, nil
	}

	obj, err := n.adapter.client.Head(ctx, n.key)
	if err != nil {
		return nil, wrapError("stat", n.key, err)
	}

	n.cached = n.infoFrom(obj)
	info := *n.cached
	return &info, nil
}

// Children implements storage.Node. Objects have no children.
func (n *FileNode) Children(context.Context) ([]storage.Node, error) {
	return nil, nil
}

// Open implements storage.Node.
func (n *FileNode) Open(ctx context.Context) (io.ReadCloser, error) {
	body, err := n.adapter.client.Get(ctx, n.key)
	if err != nil {
		return nil, wrapError("open", n.key, err)
	}
	return body, nil
}

// OpenWriter implements storage.Node.
//
// Writes are staged in memory and committed as one object on Close. In
// append mode the current content is loaded into the buffer first.
func (n *FileNode) OpenWriter(ctx context.Context, mode storage.WriteMode) (io.WriteCloser, error) {
	w := &stagingWriter{ctx: ctx, node: n}

	if mode == storage.WriteAppend {
		body, err := n.adapter.client.Get(ctx, n.key)
		switch {
		case err == nil:
			_, copyErr := io.Copy(&w.buf, body)
			_ = body.Close()
			if copyErr != nil {
				return nil, fmt.Errorf("load %s for append: %w", n.key, copyErr)
			}
		case errors.Is(err, ErrObjectNotFound):
		default:
			return nil, wrapError("load", n.key, err)
		}
	}

	return w, nil
}

// commit stores data as the object body and re-reads the object so the
// node reflects what the store accepted.
func (n *FileNode) commit(ctx context.Context, data []byte) error {
	contentType := storage.ResolveContentType(n.contentType, "", n.key)
	if err := n.adapter.client.Put(ctx, n.key, data, contentType); err != nil {
		return wrapError("put", n.key, err)
	}
	n.dirty = false

	obj, err := n.adapter.client.Head(ctx, n.key)
	if err != nil {
		return wrapError("confirm", n.key, err)
	}
	n.cached = n.infoFrom(obj)

	logger.Debug("Object adapter: stored %s (%d bytes, %s)", n.key, len(data), contentType)
	return nil
}

// Rename implements storage.Node as copy then delete.
func (n *FileNode) Rename(ctx context.Context, to vpath.Path) error {
	full, err := resolve(n.root, to)
	if err != nil {
		return err
	}
	dst := keyOf(full)

	if err := n.adapter.client.Copy(ctx, n.key, dst, n.contentType); err != nil {
		return wrapError("copy", n.key, err)
	}
	if err := n.adapter.client.Delete(ctx, n.key); err != nil {
		return wrapError("delete", n.key, err)
	}

	n.path = to
	n.key = dst
	n.cached = nil
	return nil
}

// Delete implements storage.Node.
func (n *FileNode) Delete(ctx context.Context) error {
	if err := n.adapter.client.Delete(ctx, n.key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return wrapError("delete", n.key, err)
	}
	n.cached = nil
	return nil
}

// CreateDirectory implements storage.Node by writing the folder
// placeholder. It fails with ErrNotDirectory when an object already exists
// at this key.
func (n *FileNode) CreateDirectory(ctx context.Context) error {
	_, err := n.adapter.client.Head(ctx, n.key)
	switch {
	case err == nil:
		return fmt.Errorf("mkdir %s: %w", n.key, storage.ErrNotDirectory)
	case !errors.Is(err, ErrObjectNotFound):
		return wrapError("head", n.key, err)
	}

	return ensurePlaceholder(ctx, n.adapter.client, n.key)
}

// SetContentType implements storage.Node.
func (n *FileNode) SetContentType(contentType string) {
	if contentType == n.contentType {
		return
	}
	n.contentType = contentType
	n.dirty = true
}

// Save implements storage.Node. A content type set after the last write is
// stored by rewriting the object metadata in place.
func (n *FileNode) Save(ctx context.Context) error {
	if !n.dirty || n.contentType == "" {
		return nil
	}

	if err := n.adapter.client.Copy(ctx, n.key, n.key, n.contentType); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return wrapError("save", n.key, err)
	}

	n.dirty = false
	if n.cached != nil {
		n.cached.ContentType = n.contentType
	}
	return nil
}

// ensurePlaceholder writes the folder placeholder under key unless it is
// already there. A missing placeholder is the normal state of a folder that
// was never created explicitly.
func ensurePlaceholder(ctx context.Context, client Client, key string) error {
	placeholder := folderPrefix(key) + PlaceholderName

	_, err := client.Head(ctx, placeholder)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrObjectNotFound) {
		return wrapError("head", placeholder, err)
	}

	if err := client.Put(ctx, placeholder, nil, ""); err != nil {
		return wrapError("put", placeholder, err)
	}
	return nil
}

func folderInfo(modified time.Time) *storage.Info {
	return &storage.Info{
		Kind:       storage.KindDirectory,
		CreatedAt:  modified,
		ModifiedAt: modified,
	}
}
