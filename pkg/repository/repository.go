// Package repository groups the mounts served under one domain together
// with their authentication gate and change notifier.
package repository

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// Config describes a repository.
type Config struct {
	Name   string
	Domain string
	Mounts []*Mount

	// Gate is optional; nil serves every request unauthenticated.
	Gate *auth.Gate

	// Notifier is optional; nil drops notifications.
	Notifier *notify.Notifier
}

// Repository is immutable after construction and safe for concurrent use.
type Repository struct {
	name     string
	domain   *regexp.Regexp
	mounts   []*Mount
	gate     *auth.Gate
	notifier *notify.Notifier
}

// New compiles the domain pattern and builds the repository. Mounts keep
// their order; the first matching mount wins.
func New(cfg Config) (*Repository, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("repository name is required")
	}

	domain, err := regexp.Compile(cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("repository %s: invalid domain pattern: %w", cfg.Name, err)
	}

	return &Repository{
		name:     cfg.Name,
		domain:   domain,
		mounts:   append([]*Mount(nil), cfg.Mounts...),
		gate:     cfg.Gate,
		notifier: cfg.Notifier,
	}, nil
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Domain returns the domain pattern source.
func (r *Repository) Domain() string { return r.domain.String() }

// Mounts returns the mounts in resolution order.
func (r *Repository) Mounts() []*Mount {
	return append([]*Mount(nil), r.mounts...)
}

// MatchDomain tests host against the domain pattern. On a match every
// named capture group is copied into rc.Vars; on a miss rc is untouched.
func (r *Repository) MatchDomain(host string, rc *RequestContext) bool {
	m := r.domain.FindStringSubmatch(host)
	if m == nil {
		return false
	}

	if rc != nil {
		for i, name := range r.domain.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			rc.Vars[name] = m[i]
		}
	}
	return true
}

// MountFor returns the first mount serving p. Only rooted paths resolve.
func (r *Repository) MountFor(p vpath.Path) (*Mount, bool) {
	if !p.IsAbsolute() {
		return nil, false
	}
	for _, m := range r.mounts {
		if m.Matches(p) {
			return m, true
		}
	}
	return nil, false
}

// Get resolves a request path to a node.
//
// Returns:
//   - storage.Node: the node, which may not exist yet
//   - error: storage.ErrNotFound when no mount serves p, or the adapter
//     error (for example storage.ErrOutsideRoot)
func (r *Repository) Get(ctx context.Context, p vpath.Path, rc *RequestContext) (storage.Node, error) {
	m, ok := r.MountFor(p)
	if !ok {
		return nil, fmt.Errorf("%s: no mount: %w", p, storage.ErrNotFound)
	}

	if rc == nil {
		rc = NewRequestContext("", "", nil)
	}
	return m.get(ctx, p, rc.Vars, rc.Header)
}

// Authorize checks the request credentials against the repository gate.
// It returns nil when the request may proceed.
func (r *Repository) Authorize(ctx context.Context, method, authorization string, rc *RequestContext) error {
	if r.gate == nil {
		return nil
	}

	remote := ""
	if rc != nil {
		remote = rc.Vars["remote_addr"]
	}
	return r.gate.Authorize(ctx, method, authorization, remote)
}

// WithAuthentication runs body only when the request is authorized. On
// refusal body is not invoked and the refusal is returned.
func (r *Repository) WithAuthentication(ctx context.Context, req *http.Request, rc *RequestContext, body func() error) error {
	if err := r.Authorize(ctx, req.Method, req.Header.Get("Authorization"), rc); err != nil {
		return err
	}
	return body()
}

// Notify forwards a change to the notifier. It never blocks.
func (r *Repository) Notify(action notify.Action, p vpath.Path, secondary ...vpath.Path) {
	if r.notifier == nil {
		return
	}

	names := make([]string, 0, len(secondary))
	for _, s := range secondary {
		names = append(names, s.String())
	}
	r.notifier.Notify(action, p.String(), names...)
}

// Close stops the notifier after delivering queued events.
func (r *Repository) Close(ctx context.Context) error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Stop(ctx)
}
