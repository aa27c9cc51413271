package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/auth"
	authbadger "github.com/marmos91/dittodav/pkg/auth/badger"
	authmemory "github.com/marmos91/dittodav/pkg/auth/memory"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/notify"
	"github.com/marmos91/dittodav/pkg/registry"
	"github.com/marmos91/dittodav/pkg/repository"
)

// CreateAuthCache creates the decision cache of one repository.
//
// Supported types:
//   - "memory": Uses pkg/auth/memory (lost on restart)
//   - "badger": Uses pkg/auth/badger, one database per repository under
//     the configured path
func CreateAuthCache(cfg *AuthConfig, repository string) (auth.Cache, error) {
	switch cfg.Cache.Type {
	case "memory":
		return authmemory.New(), nil
	case "badger":
		cache, err := authbadger.New(authbadger.Config{
			Path: filepath.Join(cfg.Cache.Badger.Path, repository),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create badger auth cache: %w", err)
		}
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown auth cache type: %q", cfg.Cache.Type)
	}
}

// CreateGate creates the authentication gate of a repository, or nil when
// the repository has no authentication URL.
func CreateGate(cfg *AuthConfig, repo RepositoryConfig, cache auth.Cache, m auth.Metrics) *auth.Gate {
	if repo.AuthenticationURL == "" {
		return nil
	}

	failureTTL := cfg.FailureTTL
	if failureTTL < 0 {
		failureTTL = 0
	}

	opts := []auth.Option{}
	if m != nil {
		opts = append(opts, auth.WithMetrics(m))
	}

	return auth.NewGate(auth.Config{
		URL:        repo.AuthenticationURL,
		PublicRead: repo.PublicRead,
		TTL:        cfg.TTL,
		FailureTTL: failureTTL,
		Timeout:    cfg.Timeout,
	}, cache, opts...)
}

// CreateNotifier creates the change notifier of a repository. Without a
// webhook URL the notifier is disabled and starts no worker.
func CreateNotifier(repo RepositoryConfig, m notify.Metrics) *notify.Notifier {
	opts := []notify.Option{}
	if m != nil {
		opts = append(opts, notify.WithMetrics(m))
	}

	n := repo.Notification
	return notify.New(repo.Name, notify.Config{
		URL:           n.URL,
		FlushInterval: n.FlushInterval,
		MaxAttempts:   n.MaxAttempts,
		RetryDelay:    n.RetryDelay,
		ErrorBackoff:  n.ErrorBackoff,
		Timeout:       n.Timeout,
	}, opts...)
}

// CreateRepository builds a repository with its mounts, gate and notifier.
// A decision cache is created only when the repository authenticates; it
// is returned so the caller can register it for sweeping and closing.
//
// On error every resource created so far is released.
func CreateRepository(ctx context.Context, cfg *Config, repoCfg RepositoryConfig, m *MetricsResult) (*repository.Repository, auth.Cache, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	mounts := make([]*repository.Mount, 0, len(repoCfg.Mounts))
	for _, mc := range repoCfg.Mounts {
		adapter, err := CreateMountAdapter(ctx, mc, m.Object)
		if err != nil {
			return nil, nil, err
		}

		mount, err := repository.NewMount(mc.Path, adapter, mc.Headers)
		if err != nil {
			return nil, nil, err
		}
		mounts = append(mounts, mount)

		logger.Debug("Repository %s: mounted %s backend at %s", repoCfg.Name, mc.Type, mc.Path)
	}

	var cache auth.Cache
	if repoCfg.AuthenticationURL != "" {
		var err error
		cache, err = CreateAuthCache(&cfg.Auth, repoCfg.Name)
		if err != nil {
			return nil, nil, err
		}
	}

	notifier := CreateNotifier(repoCfg, m.Notify)

	repo, err := repository.New(repository.Config{
		Name:     repoCfg.Name,
		Domain:   repoCfg.Domain,
		Mounts:   mounts,
		Gate:     CreateGate(&cfg.Auth, repoCfg, cache, m.Auth),
		Notifier: notifier,
	})
	if err != nil {
		_ = notifier.Stop(ctx)
		if cache != nil {
			_ = cache.Close()
		}
		return nil, nil, err
	}

	return repo, cache, nil
}

// CreateCollector creates the collector that purges expired decisions from
// every registered cache and idle buckets from the per-client rate limiter.
//
// Parameters:
//   - cfg: The complete dittodav configuration
//   - reg: Registry holding the decision caches
//   - dav: WebDAV adapter whose client limiter is swept (may be nil)
func CreateCollector(cfg *Config, reg *registry.Registry, dav *webdav.WebDAVAdapter) (*gc.Collector, error) {
	var targets []gc.Target

	for _, name := range reg.ListCaches() {
		cache, err := reg.GetCache(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, gc.Target{Name: "auth:" + name, Sweeper: cache})
	}

	if dav != nil {
		if limiter := dav.ClientLimiter(); limiter != nil {
			targets = append(targets, gc.Target{Name: "ratelimit:clients", Sweeper: limiter})
		}
	}

	return gc.NewCollector(gc.Config{
		Enabled:  len(targets) > 0,
		Interval: cfg.Auth.SweepInterval,
	}, targets...), nil
}
