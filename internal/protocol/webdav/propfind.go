package webdav

import (
	"net/http"
	"time"
)

// handlePropfind reports the properties of the node and, depending on the
// Depth header, of its descendants. The request body is not inspected;
// every property is always returned.
func (h *Handler) handlePropfind(req *request) Result {
	node, info, res, ok := req.existing()
	if !ok {
		return res
	}

	entries, err := traverse(req.ctx, node, info, parseDepth(req.r.Header.Get("Depth")), nil)
	if err != nil {
		return fail(err)
	}

	doc := multistatus{
		Namespace: davNamespace,
		Responses: make([]response, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Responses = append(doc.Responses, h.propResponse(e))
	}

	body, err := encode(doc)
	if err != nil {
		return fail(err)
	}
	return Result{Status: http.StatusMultiStatus, Body: body}
}

func (h *Handler) propResponse(e entry) response {
	info := e.info

	created := info.CreatedAt
	if created.IsZero() {
		created = h.now()
	}

	p := prop{
		CreationDate:  created.UTC().Format(time.RFC3339),
		ContentLength: info.Size,
		ContentType:   info.ContentType,
		SupportedLock: supportedLock{LockEntries: []lockEntry{
			{LockScope: lockScope{Exclusive: &struct{}{}}, LockType: lockType{Write: &struct{}{}}},
			{LockScope: lockScope{Shared: &struct{}{}}, LockType: lockType{Write: &struct{}{}}},
		}},
	}
	if !info.ModifiedAt.IsZero() {
		p.LastModified = httpDate(info.ModifiedAt)
	}
	if !info.CreatedAt.IsZero() {
		p.ETag = etag(info.CreatedAt)
	}
	if info.IsDir() {
		p.ResourceType.Collection = &struct{}{}
		p.ContentType = ""
	}

	return response{
		Href:     escapeHref(e.node.Path().Absolute(), info.IsDir()),
		Propstat: propstat{Prop: p, Status: statusOK},
	}
}
