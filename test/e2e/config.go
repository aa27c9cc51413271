package e2e

import (
	"testing"

	"github.com/marmos91/dittodav/pkg/config"
)

// StorageConfig names one way of backing the test repository.
type StorageConfig struct {
	Name  string
	Mount func(t *testing.T) config.MountConfig
}

// AllStorageConfigs lists the backends every functional test runs against.
// Object storage runs on the in-process client so no external service is
// needed; test/integration covers S3 and MinIO.
var AllStorageConfigs = []StorageConfig{
	{
		Name: "local",
		Mount: func(t *testing.T) config.MountConfig {
			return config.MountConfig{
				Path:    "/",
				Type:    config.MountLocal,
				Options: map[string]any{"root": t.TempDir()},
			}
		},
	},
	{
		Name: "object",
		Mount: func(t *testing.T) config.MountConfig {
			return config.MountConfig{
				Path:    "/",
				Type:    config.MountMemory,
				Options: map[string]any{"root": "/e2e"},
			}
		},
	},
}

// storageConfig returns the backend called name.
func storageConfig(t *testing.T, name string) StorageConfig {
	t.Helper()
	for _, sc := range AllStorageConfigs {
		if sc.Name == name {
			return sc
		}
	}
	t.Fatalf("unknown storage config %q", name)
	return StorageConfig{}
}

// singleRepository returns a configuration serving one repository for every
// host.
func singleRepository(mounts ...config.MountConfig) *config.Config {
	return &config.Config{
		Repositories: []config.RepositoryConfig{{
			Name:   "e2e",
			Domain: ".*",
			Mounts: mounts,
		}},
	}
}

// runOnAllConfigs runs fn once per storage backend with a fresh server.
func runOnAllConfigs(t *testing.T, fn func(t *testing.T, tc *TestContext)) {
	t.Helper()

	for _, sc := range AllStorageConfigs {
		t.Run(sc.Name, func(t *testing.T) {
			tc := NewTestContext(t, singleRepository(sc.Mount(t)))
			fn(t, tc)
		})
	}
}
