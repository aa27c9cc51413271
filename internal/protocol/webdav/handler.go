package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/repository"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Resolver selects the repository serving a host. *registry.Registry
// implements it.
type Resolver interface {
	Match(host string, rc *repository.RequestContext) (*repository.Repository, bool)
}

// Option customizes a Handler.
type Option func(*Handler)

// WithVersion sets the version advertised in the Server header.
func WithVersion(version string) Option {
	return func(h *Handler) { h.server = ServerName + "/" + version }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// ServerName prefixes the Server header.
const ServerName = "dittodav"

type verb func(req *request) Result

// Handler serves WebDAV requests. It keeps no per-request state and is
// safe for concurrent use.
type Handler struct {
	resolver Resolver
	server   string
	now      func() time.Time
	verbs    map[string]verb
}

// New creates a handler resolving repositories through resolver.
func New(resolver Resolver, opts ...Option) *Handler {
	h := &Handler{
		resolver: resolver,
		server:   ServerName + "/dev",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.verbs = map[string]verb{
		http.MethodOptions: h.handleOptions,
		http.MethodGet:     h.handleGet,
		http.MethodHead:    h.handleHead,
		http.MethodPut:     h.handlePut,
		http.MethodPost:    h.handlePut,
		http.MethodDelete:  h.handleDelete,
		"MKCOL":            h.handleMkcol,
		"MOVE":             h.handleMove,
		"PROPFIND":         h.handlePropfind,
		"LOCK":             h.handleLock,
		"UNLOCK":           h.handleUnlock,
	}
	return h
}

// request is the per-request state handed to verb handlers.
type request struct {
	ctx    context.Context
	r      *http.Request
	header http.Header
	repo   *repository.Repository
	rc     *repository.RequestContext
	path   vpath.Path
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Server", h.server)
	header.Set("MS-Author-Via", "DAV")

	res := h.handle(header, r)
	h.write(w, r, res)
}

func (h *Handler) handle(header http.Header, r *http.Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{
				Status: http.StatusInternalServerError,
				Err:    fmt.Errorf("panic: %v\n%s", p, debug.Stack()),
			}
		}
	}()

	// ===== Step 1: reject partial uploads =====

	if r.Header.Get("Content-Range") != "" {
		return halt(StatusInsufficientStorage)
	}

	// ===== Step 2: select the repository =====

	rc := repository.NewRequestContext(r.Host, r.RemoteAddr, header)
	repo, ok := h.resolver.Match(r.Host, rc)
	if !ok {
		logger.Debug("No repository for host %q", r.Host)
		return halt(http.StatusNotFound)
	}

	// ===== Step 3: authenticate and dispatch =====

	req := &request{
		ctx:    r.Context(),
		r:      r,
		header: header,
		repo:   repo,
		rc:     rc,
		path:   requestPath(r),
	}

	err := repo.WithAuthentication(req.ctx, r, rc, func() error {
		handler, ok := h.verbs[r.Method]
		if !ok {
			res = halt(http.StatusNotFound)
			return nil
		}
		res = handler(req)
		return nil
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			logger.Debug("Request to %s refused: %v", repo.Name(), err)
			header.Set("WWW-Authenticate", auth.Challenge)
			return halt(http.StatusUnauthorized)
		}
		return fail(err)
	}

	return res
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, res Result) {
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	if res.Err != nil && res.Status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.RequestURI(), res.Err)
	}

	switch {
	case res.Stream != nil:
		defer res.Stream.Close()
		w.WriteHeader(res.Status)
		if r.Method != http.MethodHead {
			if _, err := io.Copy(w, res.Stream); err != nil {
				logger.Debug("%s %s: streaming interrupted: %v", r.Method, r.URL.RequestURI(), err)
			}
		}

	case res.Body != nil:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", xmlContentType)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
		w.WriteHeader(res.Status)
		if r.Method != http.MethodHead {
			_, _ = w.Write(res.Body)
		}

	default:
		w.WriteHeader(res.Status)
	}
}

// requestPath returns the decoded request path as a rooted Path.
func requestPath(r *http.Request) vpath.Path {
	p := r.URL.Path
	if p == "" {
		p = "/"
	}
	return vpath.New(p)
}

// get resolves the request path to a node.
func (req *request) get(p vpath.Path) (storage.Node, error) {
	return req.repo.Get(req.ctx, p, req.rc)
}

// existing resolves the request path to a node that must exist. The
// returned Result is terminal when ok is false.
func (req *request) existing() (storage.Node, *storage.Info, Result, bool) {
	node, err := req.get(req.path)
	if err != nil {
		return nil, nil, fail(err), false
	}

	info, err := storage.StatIfExists(req.ctx, node)
	if err != nil {
		return nil, nil, fail(err), false
	}
	if info == nil {
		return nil, nil, halt(http.StatusNotFound), false
	}

	return node, info, Result{}, true
}
