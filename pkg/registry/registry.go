package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/repository"
)

// Registry manages all named resources: repositories and their auth
// decision caches, registered under the repository name. Repositories keep
// their registration order, which is the order hosts are matched in.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.RegisterCache("blog", memory.New())
//	reg.AddRepository(repo)
//
//	repo, ok := reg.Match("blog.example.com", rc)
type Registry struct {
	mu           sync.RWMutex
	repositories []*repository.Repository
	byName       map[string]*repository.Repository
	caches       map[string]auth.Cache
	cacheOrder   []string
	closed       bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*repository.Repository),
		caches: make(map[string]auth.Cache),
	}
}

// RegisterCache adds a named auth decision cache to the registry.
// Returns an error if a cache with the same name already exists.
func (r *Registry) RegisterCache(name string, cache auth.Cache) error {
	if cache == nil {
		return fmt.Errorf("cannot register nil auth cache")
	}
	if name == "" {
		return fmt.Errorf("cannot register auth cache with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caches[name]; exists {
		return fmt.Errorf("auth cache %q already registered", name)
	}

	r.caches[name] = cache
	r.cacheOrder = append(r.cacheOrder, name)
	return nil
}

// GetCache retrieves an auth cache by name.
func (r *Registry) GetCache(name string) (auth.Cache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cache, exists := r.caches[name]
	if !exists {
		return nil, fmt.Errorf("auth cache %q not found", name)
	}
	return cache, nil
}

// ListCaches returns the registered cache names in registration order.
func (r *Registry) ListCaches() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.cacheOrder...)
}

// AddRepository appends a repository. Names must be unique.
func (r *Registry) AddRepository(repo *repository.Repository) error {
	if repo == nil {
		return fmt.Errorf("cannot add nil repository")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[repo.Name()]; exists {
		return fmt.Errorf("repository %q already exists", repo.Name())
	}

	r.repositories = append(r.repositories, repo)
	r.byName[repo.Name()] = repo
	return nil
}

// GetRepository retrieves a repository by name.
func (r *Registry) GetRepository(name string) (*repository.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repo, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("repository %q not found", name)
	}
	return repo, nil
}

// ListRepositories returns the repositories in match order.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListRepositories() []*repository.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*repository.Repository(nil), r.repositories...)
}

// CountRepositories returns the number of registered repositories.
func (r *Registry) CountRepositories() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repositories)
}

// Match returns the first repository whose domain pattern matches host.
// Captures of the matching repository are copied into rc.
func (r *Registry) Match(host string, rc *repository.RequestContext) (*repository.Repository, bool) {
	host = repository.StripPort(host)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, repo := range r.repositories {
		if repo.MatchDomain(host, rc) {
			return repo, true
		}
	}
	return nil, false
}

// Close stops every repository notifier, letting queued events drain, and
// then closes the auth caches. It continues past failures and returns them
// joined. Safe to call multiple times.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	repos := append([]*repository.Repository(nil), r.repositories...)
	caches := make([]auth.Cache, 0, len(r.cacheOrder))
	for _, name := range r.cacheOrder {
		caches = append(caches, r.caches[name])
	}
	r.mu.Unlock()

	var errs []error
	for _, repo := range repos {
		if err := repo.Close(ctx); err != nil {
			logger.Warn("Repository %s did not close cleanly: %v", repo.Name(), err)
			errs = append(errs, fmt.Errorf("repository %s: %w", repo.Name(), err))
		}
	}
	for _, cache := range caches {
		if err := cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("auth cache: %w", err))
		}
	}

	return errors.Join(errs...)
}
