package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/auth/memory"
	"github.com/marmos91/dittodav/pkg/repository"
)

func newRepo(t *testing.T, name, domain string) *repository.Repository {
	t.Helper()
	repo, err := repository.New(repository.Config{Name: name, Domain: domain})
	require.NoError(t, err)
	return repo
}

func TestRepositories(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepository(newRepo(t, "blog", `^blog\.`)))
	require.NoError(t, reg.AddRepository(newRepo(t, "tenant", `^(?P<tenant>\w+)\.example\.com$`)))
	require.NoError(t, reg.AddRepository(newRepo(t, "catchall", `.*`)))

	assert.Error(t, reg.AddRepository(newRepo(t, "blog", `x`)))
	assert.Error(t, reg.AddRepository(nil))
	assert.Equal(t, 3, reg.CountRepositories())

	repo, err := reg.GetRepository("tenant")
	require.NoError(t, err)
	assert.Equal(t, "tenant", repo.Name())

	_, err = reg.GetRepository("missing")
	assert.Error(t, err)

	names := []string{}
	for _, r := range reg.ListRepositories() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"blog", "tenant", "catchall"}, names)
}

func TestMatch(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepository(newRepo(t, "blog", `^blog\.example\.com$`)))
	require.NoError(t, reg.AddRepository(newRepo(t, "tenant", `^(?P<tenant>\w+)\.example\.com$`)))

	tests := []struct {
		host   string
		want   string
		tenant string
	}{
		{"blog.example.com", "blog", ""},
		{"blog.example.com:8080", "blog", ""},
		{"acme.example.com", "tenant", "acme"},
		{"example.org", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			rc := repository.NewRequestContext(tt.host, "1.1.1.1", nil)
			repo, ok := reg.Match(tt.host, rc)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, repo.Name())
			assert.Equal(t, tt.tenant, rc.Vars["tenant"])
		})
	}
}

type closingCache struct {
	auth.Cache
	closed int
	err    error
}

func (c *closingCache) Close() error {
	c.closed++
	return c.err
}

func TestCachesAndClose(t *testing.T) {
	reg := NewRegistry()
	good := &closingCache{Cache: memory.New()}
	bad := &closingCache{Cache: memory.New(), err: errors.New("disk")}

	require.NoError(t, reg.RegisterCache("good", good))
	require.NoError(t, reg.RegisterCache("bad", bad))
	assert.Error(t, reg.RegisterCache("good", good))
	assert.Error(t, reg.RegisterCache("", good))
	assert.Error(t, reg.RegisterCache("nil", nil))
	assert.Equal(t, []string{"good", "bad"}, reg.ListCaches())

	c, err := reg.GetCache("good")
	require.NoError(t, err)
	assert.Same(t, good, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = reg.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk")
	assert.Equal(t, 1, good.closed)
	assert.Equal(t, 1, bad.closed)

	require.NoError(t, reg.Close(ctx))
	assert.Equal(t, 1, good.closed)
}
