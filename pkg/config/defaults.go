package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/notify"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific options are defaulted by the backends themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAuthDefaults(&cfg.Auth)

	// Serve a scratch directory if no repository is configured
	if len(cfg.Repositories) == 0 {
		cfg.Repositories = []RepositoryConfig{defaultRepository()}
	}

	applyRepositoryDefaults(cfg.Repositories)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *logger.Config) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = metrics.DefaultPort
	}
}

// applyAuthDefaults sets decision cache defaults. FailureTTL is only
// defaulted when unset so that a negative value can switch failure caching
// off.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	cfg.Cache.Type = strings.ToLower(cfg.Cache.Type)

	if cfg.Cache.Type == "badger" && cfg.Cache.Badger.Path == "" {
		cfg.Cache.Badger.Path = filepath.Join(getConfigDir(), "auth")
	}

	if cfg.TTL == 0 {
		cfg.TTL = auth.DefaultTTL
	}
	if cfg.FailureTTL == 0 {
		cfg.FailureTTL = auth.DefaultFailureTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = auth.DefaultTimeout
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = gc.DefaultInterval
	}
}

// applyRepositoryDefaults fills notification timings and normalizes mount
// types. Notification timings are filled even without a URL so that the
// generated sample shows them.
func applyRepositoryDefaults(repos []RepositoryConfig) {
	for i := range repos {
		repo := &repos[i]

		n := &repo.Notification
		if n.FlushInterval == 0 {
			n.FlushInterval = notify.DefaultFlushInterval
		}
		if n.MaxAttempts == 0 {
			n.MaxAttempts = notify.DefaultMaxAttempts
		}
		if n.RetryDelay == 0 {
			n.RetryDelay = notify.DefaultRetryDelay
		}
		if n.ErrorBackoff == 0 {
			n.ErrorBackoff = notify.DefaultErrorBackoff
		}
		if n.Timeout == 0 {
			n.Timeout = notify.DefaultTimeout
		}

		for j := range repo.Mounts {
			m := &repo.Mounts[j]
			m.Type = strings.ToLower(m.Type)
			if m.Options == nil {
				m.Options = make(map[string]any)
			}
		}
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the WebDAV adapter when it looks unconfigured (no port), so a
	// config loaded without a file passes validation. An explicit
	// enabled: false alongside a port keeps it off.
	if !cfg.WebDAV.Enabled && cfg.WebDAV.Port == 0 {
		cfg.WebDAV.Enabled = true
	}

	applyWebDAVDefaults(&cfg.WebDAV)
}

// applyWebDAVDefaults mirrors the defaults the adapter applies itself so that
// they show up in generated configuration files.
func applyWebDAVDefaults(cfg *webdav.Config) {
	if cfg.Port == 0 {
		cfg.Port = webdav.DefaultPort
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func defaultRepository() RepositoryConfig {
	return RepositoryConfig{
		Name:   "default",
		Domain: ".*",
		Mounts: []MountConfig{
			{
				Path: "/",
				Type: "local",
				Options: map[string]any{
					"root":       filepath.Join(os.TempDir(), "dittodav"),
					"autocreate": true,
				},
			},
		},
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Repositories: []RepositoryConfig{defaultRepository()},
		Adapters: AdaptersConfig{
			WebDAV: webdav.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
