package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/registry"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates every repository from cfg.Repositories, in order, with its
//     mounts, authentication gate and notifier
//  2. Registers the decision cache of each authenticating repository under
//     the repository name
//  3. Adds the repositories to the registry, preserving match order
//
// On failure the partially built registry is closed, releasing caches and
// notifier workers.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	m := config.InitializeMetrics(cfg)
//	reg, err := config.InitializeRegistry(ctx, cfg, m)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config, m *MetricsResult) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.Repositories) == 0 {
		return nil, fmt.Errorf("no repositories configured: at least one repository is required")
	}

	logger.Debug("Initializing registry from configuration")

	reg := registry.NewRegistry()

	for _, repoCfg := range cfg.Repositories {
		repo, cache, err := CreateRepository(ctx, cfg, repoCfg, m)
		if err != nil {
			_ = reg.Close(ctx)
			return nil, fmt.Errorf("failed to create repository %q: %w", repoCfg.Name, err)
		}

		if cache != nil {
			if err := reg.RegisterCache(repoCfg.Name, cache); err != nil {
				_ = cache.Close()
				_ = repo.Close(ctx)
				_ = reg.Close(ctx)
				return nil, fmt.Errorf("failed to register auth cache %q: %w", repoCfg.Name, err)
			}
		}

		if err := reg.AddRepository(repo); err != nil {
			_ = repo.Close(ctx)
			_ = reg.Close(ctx)
			return nil, fmt.Errorf("failed to add repository %q: %w", repoCfg.Name, err)
		}

		logger.Debug("Repository %q added (domain: %s, mounts: %d, authenticated: %v)",
			repoCfg.Name, repoCfg.Domain, len(repoCfg.Mounts), repoCfg.AuthenticationURL != "")
	}

	logger.Info("Registered %d repositories", reg.CountRepositories())
	return reg, nil
}
