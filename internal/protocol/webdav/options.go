package webdav

import (
	"net/http"
	"strings"
)

// allowedMethods is advertised by OPTIONS.
var allowedMethods = []string{
	http.MethodOptions, http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodDelete, "MKCOL", "PROPFIND", "MOVE", "LOCK", "UNLOCK",
}

// handleOptions advertises the verb set and the DAV compliance classes.
// It never touches storage.
func (h *Handler) handleOptions(req *request) Result {
	req.header.Set("Allow", strings.Join(allowedMethods, ", "))
	req.header.Set("DAV", "1, 2")
	req.header.Set("Content-Length", "0")
	return halt(http.StatusOK)
}
