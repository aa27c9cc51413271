package webdav

import (
	"bytes"
	"io"
	"net/http"

	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage"
)

// maxMkcolBody bounds how much of a MKCOL body is inspected.
const maxMkcolBody = 64 << 10

// handleMkcol creates a collection. Creating an existing collection
// succeeds with 200; a new one answers 201.
func (h *Handler) handleMkcol(req *request) Result {
	node, err := req.get(req.path)
	if err != nil {
		return fail(err)
	}

	info, err := storage.StatIfExists(req.ctx, node)
	if err != nil {
		return fail(err)
	}
	if info != nil && !info.IsDir() {
		return halt(http.StatusMethodNotAllowed)
	}

	body, err := io.ReadAll(io.LimitReader(req.r.Body, maxMkcolBody))
	if err != nil {
		return fail(err)
	}
	if len(bytes.TrimSpace(body)) > 0 {
		return halt(http.StatusUnsupportedMediaType)
	}

	if err := node.CreateDirectory(req.ctx); err != nil {
		return fail(err)
	}

	if info != nil {
		return halt(http.StatusOK)
	}

	req.repo.Notify(notify.ActionMakeCollection, node.Path().Absolute())
	return halt(http.StatusCreated)
}
