package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/spf13/viper"
)

// Config represents the complete dittodav configuration.
//
// This structure captures all configurable aspects of the gateway:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - Authentication decision cache settings
//   - Repository definitions (domain, mounts, authentication, notifications)
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTODAV_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Mount Configuration Pattern:
// Each storage backend defines its own configuration type. A mount carries
// its backend settings as a free-form options map that is decoded into the
// backend type selected by the mount's type field.
type Config struct {
	// Logging controls log output behavior
	Logging logger.Config `mapstructure:"logging" json:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Auth configures how authentication decisions are cached
	Auth AuthConfig `mapstructure:"auth" json:"auth"`

	// Repositories are matched against the request host in order
	Repositories []RepositoryConfig `mapstructure:"repositories" validate:"dive" json:"repositories"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" json:"adapters"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds each phase of graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" json:"shutdown_timeout"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
}

// MetricsConfig configures the metrics HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Address string `mapstructure:"address" json:"address,omitempty"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" json:"port,omitempty"`
}

// AuthConfig configures the decision cache and its timings.
type AuthConfig struct {
	// Cache selects where decisions are kept
	Cache AuthCacheConfig `mapstructure:"cache" json:"cache"`

	// TTL applies to granted and denied decisions
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0" json:"ttl"`

	// FailureTTL applies to authority failures (timeouts, unexpected
	// statuses). A negative value disables caching of failures.
	FailureTTL time.Duration `mapstructure:"failure_ttl" json:"failure_ttl"`

	// Timeout bounds a single call to an authentication URL
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" json:"timeout"`

	// SweepInterval is how often expired decisions are purged
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0" json:"sweep_interval"`
}

// AuthCacheConfig selects the decision cache backend.
type AuthCacheConfig struct {
	// Type is memory or badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" json:"type"`

	// Badger contains badger-specific configuration
	// Only used when Type = "badger"
	Badger BadgerCacheConfig `mapstructure:"badger" json:"badger,omitempty"`
}

// BadgerCacheConfig configures persistent decision caches. Each repository
// keeps its own database in a subdirectory of Path.
type BadgerCacheConfig struct {
	Path string `mapstructure:"path" json:"path,omitempty"`
}

// RepositoryConfig defines one repository.
type RepositoryConfig struct {
	// Name identifies the repository in logs and metrics
	Name string `mapstructure:"name" validate:"required" json:"name"`

	// Domain is a regular expression matched against the request host.
	// Named groups become request variables.
	Domain string `mapstructure:"domain" validate:"required" json:"domain"`

	// AuthenticationURL enables the authentication gate when set.
	// {{identification}} and {{password}} are substituted per request.
	AuthenticationURL string `mapstructure:"authentication_url" json:"authentication_url,omitempty"`

	// PublicRead lets GET and HEAD through without credentials
	PublicRead bool `mapstructure:"public_read" json:"public_read,omitempty"`

	// Notification configures the change webhook
	Notification NotificationConfig `mapstructure:"notification" json:"notification,omitempty"`

	// Mounts are tested against the request path in order
	Mounts []MountConfig `mapstructure:"mounts" validate:"required,min=1,dive" json:"mounts"`
}

// NotificationConfig configures the change webhook of a repository.
type NotificationConfig struct {
	// URL of the webhook. Empty disables notifications.
	URL string `mapstructure:"url" validate:"omitempty,url" json:"url,omitempty"`

	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"gte=0" json:"flush_interval,omitempty"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=0" json:"max_attempts,omitempty"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0" json:"retry_delay,omitempty"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff" validate:"gte=0" json:"error_backoff,omitempty"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0" json:"timeout,omitempty"`
}

// MountConfig binds a URL subtree to a storage backend.
type MountConfig struct {
	// Path is the URL prefix served by this mount (e.g., "/media")
	Path string `mapstructure:"path" validate:"required,startswith=/" json:"path"`

	// Type selects the backend
	// Valid values: local, s3, minio, memory
	Type string `mapstructure:"type" validate:"required,oneof=local s3 minio memory" json:"type"`

	// Headers are added to every response resolved through this mount
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`

	// Options are the backend settings, decoded according to Type
	Options map[string]any `mapstructure:"options" json:"options,omitempty"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// WebDAV uses the webdav.Config type directly to avoid duplication.
	WebDAV webdav.Config `mapstructure:"webdav" json:"webdav"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTODAV_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error. Validation
//     failures unwrap to *ValidationError.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTODAV_ prefix and underscores
	// Example: DITTODAV_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTODAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// Default location: $XDG_CONFIG_HOME/dittodav/config.yaml
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittodav")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittodav")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
