package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vaultctl/internal/auth"
	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/vault"
	"github.com/systmms/vaultctl/tests/fakes"
	tu "github.com/systmms/vaultctl/tests/testutil"
)

var defaultLayout = KVLayout{Mount: "proxmox", LxcPath: "lxc", DockerPath: "docker"}

type ensureFunc func(ctx context.Context) (*credential.Credential, error)

func (f ensureFunc) Ensure(ctx context.Context) (*credential.Credential, error) { return f(ctx) }

func alwaysValid() Ensurer {
	return ensureFunc(func(context.Context) (*credential.Credential, error) {
		return &credential.Credential{Token: "hvs.ok"}, nil
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout KVLayout
		typ    ScopeType
		scope  string
		mount  string
		path   string
	}{
		{"lxc default", defaultLayout, ScopeLXC, "200", "proxmox", "lxc/200"},
		{"docker default", defaultLayout, ScopeDocker, "grafana", "proxmox", "docker/grafana"},
		{"base path", KVLayout{Mount: "kv", BasePath: "infra/", LxcPath: "lxc", DockerPath: "compose"}, ScopeDocker, "web", "kv", "infra/compose/web"},
		{"nested scope", defaultLayout, ScopeLXC, "site-a/101", "proxmox", "lxc/site-a/101"},
		{"empty sub path", KVLayout{Mount: "secret"}, ScopeLXC, "100", "secret", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mount, p := Path(tt.layout, tt.typ, tt.scope)
			assert.Equal(t, tt.mount, mount)
			assert.Equal(t, tt.path, p)
		})
	}
}

func TestValidateScope(t *testing.T) {
	t.Parallel()

	for _, scope := range []string{"200", "grafana", "site-a/101", "a..b"} {
		assert.NoError(t, ValidateScope(scope), scope)
	}
	for _, scope := range []string{"", "  ", "/200", "../200", "lxc/../../root"} {
		err := ValidateScope(scope)
		assert.Error(t, err, scope)
		assert.Equal(t, vcerrors.ExitOperation, vcerrors.ExitCode(err))
	}
}

func TestParseScopeType(t *testing.T) {
	t.Parallel()

	typ, err := ParseScopeType("Docker")
	require.NoError(t, err)
	assert.Equal(t, ScopeDocker, typ)

	_, err = ParseScopeType("vm")
	assert.Error(t, err)
}

func TestResolveReadsScopePath(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.Put("proxmox", "lxc/100", secretset.FromPairs("", "DB_PASSWORD", "s3cret", "API_KEY", "abc"))
	r := New(store, alwaysValid(), defaultLayout, time.Second, tu.NewTestLogger(t).Logger)

	set, err := r.Resolve(context.Background(), "100", ScopeLXC)
	require.NoError(t, err)
	assert.Equal(t, "100", set.ScopeID)
	assert.Equal(t, []string{"DB_PASSWORD", "API_KEY"}, set.Keys())
	assert.Equal(t, []string{"Read proxmox/lxc/100"}, store.Calls())
}

func TestResolveRejectsBadScopeBeforeAnyCall(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	ensured := false
	r := New(store, ensureFunc(func(context.Context) (*credential.Credential, error) {
		ensured = true
		return nil, nil
	}), defaultLayout, 0, nil)

	_, err := r.Resolve(context.Background(), "../etc", ScopeLXC)
	require.Error(t, err)
	assert.False(t, ensured)
	assert.Empty(t, store.Calls())
}

func TestResolveStopsWhenAuthenticationFails(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	r := New(store, ensureFunc(func(context.Context) (*credential.Credential, error) {
		return nil, vcerrors.ErrNotAuthenticated
	}), defaultLayout, 0, nil)

	_, err := r.Resolve(context.Background(), "100", ScopeLXC)
	assert.ErrorIs(t, err, vcerrors.ErrNotAuthenticated)
	assert.Zero(t, store.Count("Read"))
}

func TestResolveRenewsDueTokenBeforeReading(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := fakes.NewFakeStore()
	store.Put("proxmox", "lxc/200", secretset.FromPairs("", "K", "v"))
	store.RenewSelfFunc = func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
		return &vault.AuthResult{TTL: inc, Renewable: true}, nil
	}
	cache := fakes.NewMemoryCache(&credential.Credential{
		Token:     "hvs.cached",
		Address:   "https://vault:8200",
		Method:    credential.MethodAppRole,
		IssuedAt:  now.Add(-time.Hour),
		RenewedAt: now.Add(-time.Hour),
		TTL:       90 * time.Minute,
		Renewable: true,
	})
	a := auth.New(store, cache, auth.Options{
		Address:   "https://vault:8200",
		Threshold: time.Hour,
		Increment: 24 * time.Hour,
	}, nil).WithClock(func() time.Time { return now })

	r := New(store, a, defaultLayout, 0, nil)
	_, err := r.Resolve(context.Background(), "200", ScopeLXC)
	require.NoError(t, err)

	assert.Equal(t, []string{"RenewSelf 24h0m0s", "Read proxmox/lxc/200"}, store.Calls())
	assert.Equal(t, 24*time.Hour, cache.Stored().TTL)
}

func TestResolveFields(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.Put("proxmox", "docker/web", secretset.FromPairs("", "A", "1", "B", "2", "C", "3"))
	r := New(store, alwaysValid(), defaultLayout, 0, nil)

	set, err := r.ResolveFields(context.Background(), "web", ScopeDocker, []string{"C", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, set.Keys())

	_, err = r.ResolveFields(context.Background(), "web", ScopeDocker, []string{"A", "MISSING"})
	var missing *secretset.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"MISSING"}, missing.Missing)
	assert.Equal(t, []string{"A", "B", "C"}, missing.Available)
	assert.Equal(t, vcerrors.ExitOperation, vcerrors.ExitCode(err))

	// A projection is a full read as far as the store is concerned.
	assert.Equal(t, 2, store.Count("Read"))
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()

	r := New(fakes.NewFakeStore(), alwaysValid(), defaultLayout, 0, nil)
	_, err := r.Resolve(context.Background(), "999", ScopeLXC)
	assert.ErrorIs(t, err, vcerrors.ErrNotFound)
	assert.Equal(t, vcerrors.ExitOperation, vcerrors.ExitCode(err))
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.ReadFunc = func(ctx context.Context, mount, path string) (*secretset.SecretSet, error) {
		<-ctx.Done()
		return nil, &vcerrors.StoreError{Op: "read", Path: path, Kind: vcerrors.ErrUnreachable, Err: ctx.Err()}
	}
	r := New(store, alwaysValid(), defaultLayout, 20*time.Millisecond, nil)

	_, err := r.Resolve(context.Background(), "100", ScopeLXC)
	var userErr vcerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "request_timeout")
	assert.ErrorIs(t, err, vcerrors.ErrUnreachable)
	assert.Equal(t, vcerrors.ExitEnvironment, vcerrors.ExitCode(err))
}

func TestWriteMergeThenReplace(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.Put("proxmox", "lxc/100", secretset.FromPairs("", "A", "1", "B", "2"))
	r := New(store, alwaysValid(), defaultLayout, 0, nil)
	ctx := context.Background()

	merged, err := r.Write(ctx, "100", ScopeLXC, secretset.FromPairs("", "B", "20", "C", "3"), secretset.Merge)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "20", "C": "3"}, merged.Map())
	assert.Equal(t, "100", merged.ScopeID)

	_, err = r.Write(ctx, "100", ScopeLXC, secretset.FromPairs("", "Z", "9"), secretset.Replace)
	require.NoError(t, err)
	got, err := r.Resolve(ctx, "100", ScopeLXC)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Z": "9"}, got.Map())
}

func TestDeleteAndList(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.Put("proxmox", "docker/web", secretset.FromPairs("", "A", "1"))
	store.ListFunc = func(_ context.Context, mount, path string) ([]string, error) {
		if mount != "proxmox" || path != "docker" {
			return nil, errors.New("unexpected list path " + mount + "/" + path)
		}
		return []string{"web", "worker/"}, nil
	}
	r := New(store, alwaysValid(), defaultLayout, 0, nil)
	ctx := context.Background()

	keys, err := r.List(ctx, ScopeDocker)
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "worker/"}, keys)

	require.NoError(t, r.Delete(ctx, "web", ScopeDocker, false))
	assert.ErrorIs(t, r.Delete(ctx, "web", ScopeDocker, false), vcerrors.ErrNotFound)
}
