package webdav

import (
	"encoding/xml"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/marmos91/dittodav/internal/logger"
)

const (
	// defaultLockTimeout is echoed when the client sends no Timeout.
	defaultLockTimeout = "Second-3600"

	maxLockBody = 64 << 10
)

// handleLock answers with a fresh lock token without holding any lock.
func (h *Handler) handleLock(req *request) Result {
	if _, _, res, ok := req.existing(); !ok {
		return res
	}

	scope, kind, owner := parseLockInfo(req.r.Body)
	if owner == "" {
		owner = req.path.String()
	}

	timeout := req.r.Header.Get("Timeout")
	if timeout == "" {
		timeout = defaultLockTimeout
	}

	token := "opaquelocktoken:" + uuid.NewString()
	req.header.Set("Lock-Token", "<"+token+">")

	active := activeLock{
		LockType:  davElement(kind),
		LockScope: davElement(scope),
		Depth:     "infinity",
		Owner:     href{Href: owner},
		Timeout:   timeout,
		LockToken: href{Href: token},
		LockRoot:  href{Href: escapeHref(req.path, false)},
	}
	logger.Debug("LOCK %s: %s %s lock for %s", req.path, scope, kind, owner)

	body, err := encode(lockDiscoveryProp{
		Namespace:     davNamespace,
		LockDiscovery: lockDiscovery{ActiveLock: active},
	})
	if err != nil {
		return fail(err)
	}
	return Result{Status: http.StatusOK, Body: body}
}

// handleUnlock always succeeds.
func (h *Handler) handleUnlock(req *request) Result {
	return halt(http.StatusNoContent)
}

// parseLockInfo reads scope, type and owner from an optional lockinfo
// body. Missing or malformed bodies yield exclusive/write and no owner.
func parseLockInfo(body io.Reader) (scope, kind, owner string) {
	scope, kind = "exclusive", "write"
	if body == nil {
		return scope, kind, ""
	}

	var info lockInfo
	if err := xml.NewDecoder(io.LimitReader(body, maxLockBody)).Decode(&info); err != nil {
		return scope, kind, ""
	}

	if s := info.LockScope.first(); s != "" {
		scope = s
	}
	if k := info.LockType.first(); k != "" {
		kind = k
	}

	owner = strings.TrimSpace(info.Owner.Href)
	if owner == "" {
		owner = strings.TrimSpace(info.Owner.Text)
	}
	return scope, kind, owner
}
