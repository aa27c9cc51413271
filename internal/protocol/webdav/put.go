package webdav

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage"
)

// handlePut replaces the whole content of a file. POST is handled the same
// way.
//
// Returns 201 when the file was created and 204 when it was overwritten.
func (h *Handler) handlePut(req *request) Result {
	// ===== Step 1: resolve the target =====

	node, err := req.get(req.path)
	if err != nil {
		return fail(err)
	}

	info, err := storage.StatIfExists(req.ctx, node)
	if err != nil {
		return fail(err)
	}
	if info != nil && info.IsDir() {
		return halt(http.StatusMethodNotAllowed)
	}
	overwriting := info != nil

	// ===== Step 2: write the body =====

	// Set before writing so backends store the type with the content
	node.SetContentType(requestContentType(req.r, node.Path().Last()))

	w, err := node.OpenWriter(req.ctx, storage.WriteTruncate)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(w, req.r.Body); err != nil {
		_ = w.Close()
		return fail(fmt.Errorf("write %s: %w", req.path, err))
	}
	if err := w.Close(); err != nil {
		return fail(err)
	}

	if err := node.Save(req.ctx); err != nil {
		return fail(err)
	}

	if overwriting {
		req.repo.Notify(notify.ActionModify, node.Path().Absolute())
		return halt(http.StatusNoContent)
	}

	req.repo.Notify(notify.ActionCreate, node.Path().Absolute())
	return halt(http.StatusCreated)
}

// requestContentType picks the stored media type: the parsed request media
// type, then the raw Content-Type header, then a guess from the name.
func requestContentType(r *http.Request, name string) string {
	raw := r.Header.Get("Content-Type")

	mediaType := ""
	if raw != "" {
		if mt, _, err := mime.ParseMediaType(raw); err == nil {
			mediaType = mt
		}
	}

	return storage.ResolveContentType(mediaType, raw, name)
}
