package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Node is a file or directory below a local adapter root.
type Node struct {
	root        vpath.Path
	path        vpath.Path
	local       vpath.Path
	contentType string
}

var _ storage.Node = (*Node)(nil)

// Path implements storage.Node.
func (n *Node) Path() vpath.Path {
	return n.path
}

// LocalPath returns the filesystem path the node maps to.
func (n *Node) LocalPath() string {
	return n.local.String()
}

// Stat implements storage.Node.
func (n *Node) Stat(ctx context.Context) (*storage.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(n.local.String())
	if err != nil {
		return nil, wrapError("stat", n.path, err)
	}

	return n.info(fi), nil
}

func (n *Node) info(fi fs.FileInfo) *storage.Info {
	info := &storage.Info{
		Kind:       storage.KindFile,
		Size:       fi.Size(),
		CreatedAt:  createdAt(fi),
		ModifiedAt: fi.ModTime(),
	}

	if fi.IsDir() {
		info.Kind = storage.KindDirectory
		info.Size = 0
		return info
	}

	info.ContentType = storage.ResolveContentType(n.contentType, "", n.local.Last())
	return info
}

// Children implements storage.Node.
//
// Only regular files and directories are listed. A directory that cannot
// be read because of permissions lists as empty.
func (n *Node) Children(ctx context.Context) ([]storage.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(n.local.String())
	switch {
	case err == nil:
	case storage.IsPermission(err):
		logger.Debug("Local adapter: permission denied listing %s", n.local)
		return nil, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return nil, nil
	default:
		return nil, wrapError("list", n.path, err)
	}

	children := make([]storage.Node, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}

		child := &Node{
			root:  n.root,
			path:  n.path.Child(name),
			local: n.local.Child(name),
		}
		if !child.listable(entry) {
			continue
		}
		children = append(children, child)
	}

	return children, nil
}

// listable accepts regular files and directories, following symlinks.
func (n *Node) listable(entry fs.DirEntry) bool {
	mode := entry.Type()
	if mode.IsRegular() || mode.IsDir() {
		return true
	}
	if mode&fs.ModeSymlink == 0 {
		return false
	}

	fi, err := os.Stat(n.local.String())
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() || fi.IsDir()
}

// Open implements storage.Node.
func (n *Node) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(n.local.String())
	if err != nil {
		return nil, wrapError("open", n.path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wrapError("stat", n.path, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", n.path, storage.ErrIsDirectory)
	}

	return f, nil
}

// OpenWriter implements storage.Node. Missing parent directories are
// created.
func (n *Node) OpenWriter(ctx context.Context, mode storage.WriteMode) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if parent, ok := n.local.Parent(); ok {
		if err := os.MkdirAll(parent.String(), dirPerm); err != nil {
			return nil, wrapError("create parent of", n.path, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if mode == storage.WriteAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(n.local.String(), flags, filePerm)
	if err != nil {
		if errors.Is(err, syscall.EISDIR) {
			return nil, fmt.Errorf("write %s: %w", n.path, storage.ErrIsDirectory)
		}
		return nil, wrapError("write", n.path, err)
	}

	return f, nil
}

// Rename implements storage.Node. The destination must stay below the
// adapter root.
func (n *Node) Rename(ctx context.Context, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := resolve(n.root, to)
	if err != nil {
		return err
	}

	if err := os.Rename(n.local.String(), target.String()); err != nil {
		return wrapError("rename", n.path, err)
	}

	logger.Debug("Local adapter: renamed %s to %s", n.local, target)
	n.path = to
	n.local = target
	return nil
}

// Delete implements storage.Node.
func (n *Node) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(n.local.String())
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return wrapError("delete", n.path, err)
}

// CreateDirectory implements storage.Node.
func (n *Node) CreateDirectory(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Mkdir(n.local.String(), dirPerm)
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrExist) {
		fi, statErr := os.Stat(n.local.String())
		if statErr == nil && fi.IsDir() {
			return nil
		}
		return fmt.Errorf("mkdir %s: %w", n.path, storage.ErrNotDirectory)
	}

	return wrapError("mkdir", n.path, err)
}

// SetContentType implements storage.Node. The override lives as long as
// the node; the filesystem keeps no media type.
func (n *Node) SetContentType(contentType string) {
	n.contentType = contentType
}

// Save implements storage.Node. Writes are immediate, nothing to flush.
func (n *Node) Save(ctx context.Context) error {
	return ctx.Err()
}
