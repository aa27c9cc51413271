package webdav

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/dittodav/pkg/storage"
)

// handleGet streams a file. Collections have no representation and answer
// 405.
func (h *Handler) handleGet(req *request) Result {
	node, info, res, ok := req.existing()
	if !ok {
		return res
	}
	if info.IsDir() {
		return halt(http.StatusMethodNotAllowed)
	}

	setEntityHeaders(req.header, node, info)

	if notModified(req.r, info) {
		req.header.Del("Content-Length")
		req.header.Del("Content-Type")
		return halt(http.StatusNotModified)
	}

	stream, err := node.Open(req.ctx)
	if err != nil {
		return fail(err)
	}
	return Result{Status: http.StatusOK, Stream: stream}
}

// handleHead answers like GET without a body. Collections report their
// headers too.
func (h *Handler) handleHead(req *request) Result {
	node, info, res, ok := req.existing()
	if !ok {
		return res
	}

	setEntityHeaders(req.header, node, info)
	return halt(http.StatusOK)
}

func setEntityHeaders(header http.Header, node storage.Node, info *storage.Info) {
	header.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if info.ContentType != "" {
		header.Set("Content-Type", info.ContentType)
	} else if !info.IsDir() {
		header.Set("Content-Type", storage.ResolveContentType("", "", node.Path().Last()))
	}
	if !info.ModifiedAt.IsZero() {
		header.Set("Last-Modified", httpDate(info.ModifiedAt))
	}
}

// notModified reports whether If-Modified-Since parses and is not older
// than the modification time. HTTP dates have second precision, so the
// modification time is truncated before comparing.
func notModified(r *http.Request, info *storage.Info) bool {
	ims := r.Header.Get("If-Modified-Since")
	if ims == "" || info.ModifiedAt.IsZero() {
		return false
	}

	since, err := http.ParseTime(ims)
	if err != nil {
		return false
	}

	return !info.ModifiedAt.Truncate(time.Second).After(since)
}
