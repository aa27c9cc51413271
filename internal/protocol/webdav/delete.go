package webdav

import (
	"net/http"

	"github.com/marmos91/dittodav/pkg/notify"
)

// handleDelete removes a node. Collections are removed depth-first, each
// node after its children, with one notification per removed node.
func (h *Handler) handleDelete(req *request) Result {
	node, info, res, ok := req.existing()
	if !ok {
		return res
	}

	remove := func(e entry) error {
		if err := e.node.Delete(req.ctx); err != nil {
			return err
		}
		req.repo.Notify(notify.ActionDelete, e.node.Path().Absolute())
		return nil
	}

	if info.IsDir() {
		if _, err := traverse(req.ctx, node, info, DepthInfinity, remove); err != nil {
			return fail(err)
		}
	} else if err := remove(entry{node: node, info: info}); err != nil {
		return fail(err)
	}

	return halt(http.StatusNoContent)
}
