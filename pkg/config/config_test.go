package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/storage/object/s3client"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"

repositories:
  - name: "blog"
    domain: '^(?P<site>[a-z]+)\.example\.com$'
    mounts:
      - path: "/"
        type: "memory"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level, "level is normalized")
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Auth.Cache.Type)
	assert.Equal(t, 10*time.Minute, cfg.Auth.TTL)

	require.Len(t, cfg.Repositories, 1)
	repo := cfg.Repositories[0]
	assert.Equal(t, "blog", repo.Name)
	assert.Equal(t, 5*time.Second, repo.Notification.FlushInterval)
	require.Len(t, repo.Mounts, 1)
	assert.Equal(t, "memory", repo.Mounts[0].Type)

	assert.True(t, cfg.Adapters.WebDAV.Enabled)
	assert.Equal(t, 8080, cfg.Adapters.WebDAV.Port)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  shutdown_timeout: 10s
  metrics:
    enabled: true
    port: 9191
auth:
  cache:
    type: badger
    badger:
      path: /var/lib/dittodav/auth
  ttl: 5m
  failure_ttl: -1s
repositories:
  - name: files
    domain: '^files\.test$'
    authentication_url: "https://auth.test/check?user={{identification}}&pass={{password}}"
    public_read: true
    notification:
      url: "https://hooks.test/changes"
      max_attempts: 3
    mounts:
      - path: /
        type: local
        headers:
          Cache-Control: no-cache
        options:
          root: /srv/files
          autocreate: true
      - path: /media
        type: s3
        options:
          bucket: media
          region: eu-west-1
          max_retries: "4"
adapters:
  webdav:
    port: 8443
    rate_limit:
      requests_per_second: 100
      burst: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Server.Metrics.Port)

	assert.Equal(t, "badger", cfg.Auth.Cache.Type)
	assert.Equal(t, "/var/lib/dittodav/auth", cfg.Auth.Cache.Badger.Path)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TTL)
	assert.Equal(t, -time.Second, cfg.Auth.FailureTTL, "negative values are kept")

	repo := cfg.Repositories[0]
	assert.True(t, repo.PublicRead)
	assert.Equal(t, 3, repo.Notification.MaxAttempts)
	assert.Equal(t, time.Second, repo.Notification.RetryDelay)
	require.Len(t, repo.Mounts, 2)
	require.Len(t, repo.Mounts[0].Headers, 1)
	for name, value := range repo.Mounts[0].Headers {
		assert.Equal(t, "cache-control", strings.ToLower(name))
		assert.Equal(t, "no-cache", value)
	}

	opts, err := MountOptions(repo.Mounts[1])
	require.NoError(t, err)
	s3, ok := opts.(s3client.Config)
	require.True(t, ok)
	assert.Equal(t, "media", s3.Bucket)
	assert.Equal(t, 4, s3.MaxRetries, "scalars are converted weakly")
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	require.Len(t, cfg.Repositories, 1, "a scratch repository is served")
	assert.Equal(t, "local", cfg.Repositories[0].Mounts[0].Type)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeConfig(t, `
repositories:
  - name: files
    domain: '('
    mounts:
      - path: media
        type: ftp
`)

	_, err := Load(path)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("repositories[0].domain", "regexp"))
	assert.True(t, verr.Has("repositories[0].mounts[0].path", "startswith"))
	assert.True(t, verr.Has("repositories[0].mounts[0].type", "oneof"))
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTODAV_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTODAV_ADAPTERS_WEBDAV_PORT", "8081")

	path := writeConfig(t, `
logging:
  level: "INFO"
adapters:
  webdav:
    enabled: true
    port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, 8081, cfg.Adapters.WebDAV.Port)
}

func TestConfigPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "dittodav"), GetConfigDir())
	assert.Equal(t, filepath.Join(dir, "dittodav", "config.yaml"), GetDefaultConfigPath())
	assert.False(t, ConfigExists())

	require.NoError(t, os.MkdirAll(GetConfigDir(), 0o755))
	require.NoError(t, os.WriteFile(GetDefaultConfigPath(), []byte("{}\n"), 0o644))
	assert.True(t, ConfigExists())
}
