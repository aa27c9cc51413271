package webdav

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// handleMove renames a node inside one mount.
//
// Status codes:
//   - 400: Destination header missing or unparsable
//   - 403: destination equals the source or lies inside it
//   - 404: source missing, or destination parent missing
//   - 405: destination kind differs, collection onto an existing
//     collection, or destination on another mount
//   - 201: new destination; 204: file overwritten
func (h *Handler) handleMove(req *request) Result {
	// ===== Step 1: source =====

	node, info, res, ok := req.existing()
	if !ok {
		return res
	}

	// ===== Step 2: destination =====

	dest, ok := destinationPath(req.r.Header.Get("Destination"), req.path)
	if !ok {
		return halt(http.StatusBadRequest)
	}
	if dest.Equal(req.path) || (info.IsDir() && dest.HasPrefix(req.path)) {
		return halt(http.StatusForbidden)
	}

	srcMount, _ := req.repo.MountFor(req.path)
	dstMount, ok := req.repo.MountFor(dest)
	if !ok {
		return halt(http.StatusNotFound)
	}
	if srcMount != dstMount {
		return halt(http.StatusMethodNotAllowed)
	}

	target, err := req.get(dest)
	if err != nil {
		return fail(err)
	}
	targetInfo, err := storage.StatIfExists(req.ctx, target)
	if err != nil {
		return fail(err)
	}
	if targetInfo != nil && (targetInfo.IsDir() != info.IsDir() || info.IsDir()) {
		return halt(http.StatusMethodNotAllowed)
	}

	if res, ok := req.requireParent(dest, dstMount.Path()); !ok {
		return res
	}

	// ===== Step 3: rename =====

	rel, _ := dest.WithoutPrefix(dstMount.Path())
	oldPath := node.Path().Absolute()

	if targetInfo != nil {
		if err := target.Delete(req.ctx); err != nil {
			return fail(err)
		}
	}
	if err := node.Rename(req.ctx, rel); err != nil {
		return fail(err)
	}

	req.repo.Notify(notify.ActionRename, oldPath, dest)

	if info.IsDir() {
		req.header.Set("Location", escapeHref(dest, true))
		return halt(http.StatusCreated)
	}
	if targetInfo != nil {
		return halt(http.StatusNoContent)
	}
	return halt(http.StatusCreated)
}

// requireParent checks that the parent of dest exists as a directory. The
// mount point itself always qualifies.
func (req *request) requireParent(dest, mountPath vpath.Path) (Result, bool) {
	parent, ok := dest.Parent()
	if !ok || !parent.HasPrefix(mountPath) {
		return Result{}, true
	}

	parentNode, err := req.get(parent)
	if err != nil {
		return fail(err), false
	}
	parentInfo, err := storage.StatIfExists(req.ctx, parentNode)
	if err != nil {
		return fail(err), false
	}
	if parentInfo == nil || !parentInfo.IsDir() {
		return halt(http.StatusNotFound), false
	}
	return Result{}, true
}

// destinationPath extracts the target path from a Destination header. An
// absolute URL or absolute path is used as is; a relative reference is
// resolved against the parent of source.
func destinationPath(header string, source vpath.Path) (vpath.Path, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return vpath.Path{}, false
	}

	u, err := url.Parse(header)
	if err != nil || u.Path == "" {
		return vpath.Path{}, false
	}

	p := vpath.New(u.Path)
	if !p.IsAbsolute() {
		parent, ok := source.Parent()
		if !ok {
			parent = vpath.Root()
		}
		p = parent.Join(p)
	}

	p = p.Clean()
	if !p.IsAbsolute() {
		return vpath.Path{}, false
	}
	return p, true
}
