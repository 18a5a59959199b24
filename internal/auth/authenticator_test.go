package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/metrics"
	"github.com/systmms/vaultctl/internal/vault"
	"github.com/systmms/vaultctl/tests/fakes"
	tu "github.com/systmms/vaultctl/tests/testutil"
)

const addr = "https://vault.example.com:8200"

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func baseOptions() Options {
	return Options{
		Address:      addr,
		AppRoleMount: "approle",
		Threshold:    time.Hour,
		Increment:    24 * time.Hour,
	}
}

func appRoleOptions() Options {
	o := baseOptions()
	o.RoleID = "role"
	o.SecretID = "secret"
	return o
}

func cachedAppRole(ttl time.Duration, renewedAt time.Time) *credential.Credential {
	return &credential.Credential{
		Token:     "hvs.cached",
		Address:   addr,
		Method:    credential.MethodAppRole,
		IssuedAt:  renewedAt,
		RenewedAt: renewedAt,
		TTL:       ttl,
		Renewable: true,
		RoleID:    "role",
		SecretID:  "secret",
	}
}

func cachedToken(ttl time.Duration, renewable bool) *credential.Credential {
	return &credential.Credential{
		Token:     "hvs.static",
		Address:   addr,
		Method:    credential.MethodToken,
		IssuedAt:  t0,
		RenewedAt: t0,
		TTL:       ttl,
		Renewable: renewable,
	}
}

func newAuth(t *testing.T, store *fakes.FakeStore, cache *fakes.MemoryCache, opts Options, now time.Time) (*Authenticator, *tu.TestLogger) {
	t.Helper()
	logger := tu.NewTestLoggerWithDebug(t, true)
	a := New(store, cache, opts, logger.Logger).WithClock(func() time.Time { return now })
	return a, logger
}

func loginIssues(token string, ttl time.Duration) func(context.Context, string, string, string) (*vault.AuthResult, error) {
	return func(_ context.Context, _, _, _ string) (*vault.AuthResult, error) {
		return &vault.AuthResult{Token: token, TTL: ttl, Renewable: true}, nil
	}
}

func states(a *Authenticator) []State {
	var out []State
	for _, tr := range a.Transitions() {
		out = append(out, tr.ToState)
	}
	return out
}

func TestEnsureFirstUseLogsInWithAppRole(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = func(_ context.Context, mount, roleID, secretID string) (*vault.AuthResult, error) {
		assert.Equal(t, "approle", mount)
		assert.Equal(t, "role", roleID)
		assert.Equal(t, "secret", secretID)
		return &vault.AuthResult{Token: "hvs.new", TTL: 4 * time.Hour, Renewable: true}, nil
	}
	cache := fakes.NewMemoryCache(nil)
	a, logger := newAuth(t, store, cache, appRoleOptions(), t0)

	cred, err := a.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hvs.new", cred.Token)
	tu.AssertSecretRedacted(t, logger.GetOutput(), "hvs.new")
	assert.Equal(t, credential.MethodAppRole, cred.Method)
	assert.Equal(t, "hvs.new", store.CurrentToken())
	assert.Equal(t, "hvs.new", cache.Stored().Token)
	assert.Equal(t, []State{StateAuthenticating, StateAuthenticated}, states(a))

	// the next operation reuses the in-memory credential
	_, err = a.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count("LoginAppRole"))
}

func TestEnsureFirstUseWithDirectToken(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LookupSelfFunc = func(context.Context) (*vault.TokenInfo, error) {
		return &vault.TokenInfo{TTL: 0, Renewable: false}, nil
	}
	opts := baseOptions()
	opts.Token = "hvs.root"
	a, _ := newAuth(t, store, fakes.NewMemoryCache(nil), opts, t0)

	cred, err := a.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credential.MethodToken, cred.Method)
	assert.True(t, cred.NeverExpires())
	assert.Equal(t, "hvs.root", store.CurrentToken())
}

func TestEnsureWithoutCredentials(t *testing.T) {
	t.Parallel()

	a, _ := newAuth(t, fakes.NewFakeStore(), fakes.NewMemoryCache(nil), baseOptions(), t0)

	_, err := a.Ensure(context.Background())
	require.ErrorIs(t, err, vcerrors.ErrNotAuthenticated)
	assert.Equal(t, StateFatal, a.State())
	assert.Equal(t, vcerrors.ExitOperation, vcerrors.ExitCode(err))
}

func TestEnsureBadAppRoleCredentialsAreFatal(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = func(context.Context, string, string, string) (*vault.AuthResult, error) {
		return nil, &vcerrors.StoreError{Op: "login", Kind: vcerrors.ErrForbidden}
	}
	a, _ := newAuth(t, store, fakes.NewMemoryCache(nil), appRoleOptions(), t0)

	_, err := a.Ensure(context.Background())
	require.ErrorIs(t, err, vcerrors.ErrForbidden)
	assert.Equal(t, StateFatal, a.State())
	assert.Equal(t, 1, store.Count("LoginAppRole"), "bad credentials are not retried")
}

func TestRenewalCycle(t *testing.T) {
	t.Parallel()

	notRenewable := &vcerrors.StoreError{Op: "renew-self", Status: 400, Kind: vcerrors.ErrNotRenewable}
	forbidden := &vcerrors.StoreError{Op: "renew-self", Status: 403, Kind: vcerrors.ErrForbidden}
	unreachable := &vcerrors.StoreError{Op: "renew-self", Kind: vcerrors.ErrUnreachable}

	tests := []struct {
		name      string
		cached    *credential.Credential
		opts      Options
		now       time.Time
		force     bool
		renew     func(context.Context, time.Duration) (*vault.AuthResult, error)
		login     func(context.Context, string, string, string) (*vault.AuthResult, error)
		outcome   RenewOutcome
		wantErr   error
		wantToken string
		wantTTL   time.Duration
		path      []State
	}{
		{
			name:      "fresh token is left alone",
			cached:    cachedAppRole(2*time.Hour, t0),
			opts:      appRoleOptions(),
			now:       t0,
			outcome:   NotNeeded,
			wantToken: "hvs.cached",
			wantTTL:   2 * time.Hour,
			path:      []State{StateAuthenticated},
		},
		{
			name:      "non-expiring token is never due",
			cached:    cachedToken(0, true),
			opts:      baseOptions(),
			now:       t0.Add(10000 * time.Hour),
			outcome:   NotNeeded,
			wantToken: "hvs.static",
			path:      []State{StateAuthenticated},
		},
		{
			name:   "due token is renewed in place",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
				return &vault.AuthResult{Token: "hvs.cached", TTL: inc, Renewable: true}, nil
			},
			outcome:   Renewed,
			wantToken: "hvs.cached",
			wantTTL:   24 * time.Hour,
			path:      []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateAuthenticated},
		},
		{
			name:   "forced renewal of a fresh token",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0,
			force:  true,
			renew: func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
				return &vault.AuthResult{Token: "hvs.cached", TTL: inc, Renewable: true}, nil
			},
			outcome:   Renewed,
			wantToken: "hvs.cached",
			wantTTL:   24 * time.Hour,
			path:      []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateAuthenticated},
		},
		{
			name:   "forced renewal returning exactly the increment keeps the AppRole token",
			cached: cachedAppRole(24*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(time.Minute),
			force:  true,
			renew: func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
				return &vault.AuthResult{Token: "hvs.cached", TTL: inc, Renewable: true}, nil
			},
			outcome:   Renewed,
			wantToken: "hvs.cached",
			wantTTL:   24 * time.Hour,
			path:      []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateAuthenticated},
		},
		{
			name:   "forced renewal of a fresh direct token",
			cached: cachedToken(24*time.Hour, true),
			opts:   baseOptions(),
			now:    t0.Add(time.Minute),
			force:  true,
			renew: func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
				return &vault.AuthResult{Token: "hvs.static", TTL: inc, Renewable: true}, nil
			},
			outcome:   Renewed,
			wantToken: "hvs.static",
			wantTTL:   24 * time.Hour,
			path:      []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateAuthenticated},
		},
		{
			name:   "store refuses renewal so AppRole logs in again",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return nil, notRenewable
			},
			login:     loginIssues("hvs.reissued", 4*time.Hour),
			outcome:   Reauthenticated,
			wantToken: "hvs.reissued",
			wantTTL:   4 * time.Hour,
			path: []State{StateAuthenticated, StateRenewalDue, StateRenewing,
				StateReauthenticating, StateAuthenticating, StateAuthenticated},
		},
		{
			name:   "renewal capped by max TTL triggers re-authentication",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return &vault.AuthResult{Token: "hvs.cached", TTL: 30 * time.Minute, Renewable: true}, nil
			},
			login:     loginIssues("hvs.reissued", 4*time.Hour),
			outcome:   Reauthenticated,
			wantToken: "hvs.reissued",
			wantTTL:   4 * time.Hour,
			path: []State{StateAuthenticated, StateRenewalDue, StateRenewing,
				StateReauthenticating, StateAuthenticating, StateAuthenticated},
		},
		{
			name: "cached AppRole secret is used when config has none",
			cached: func() *credential.Credential {
				c := cachedAppRole(2*time.Hour, t0)
				c.Renewable = false
				return c
			}(),
			opts:      baseOptions(),
			now:       t0.Add(90 * time.Minute),
			login:     loginIssues("hvs.reissued", 4*time.Hour),
			outcome:   Reauthenticated,
			wantToken: "hvs.reissued",
			wantTTL:   4 * time.Hour,
			path: []State{StateAuthenticated, StateRenewalDue, StateReauthenticating,
				StateAuthenticating, StateAuthenticated},
		},
		{
			name:      "expired AppRole credential logs in again",
			cached:    cachedAppRole(2*time.Hour, t0),
			opts:      appRoleOptions(),
			now:       t0.Add(3 * time.Hour),
			login:     loginIssues("hvs.reissued", 4*time.Hour),
			outcome:   Reauthenticated,
			wantToken: "hvs.reissued",
			wantTTL:   4 * time.Hour,
			path:      []State{StateAuthenticated, StateReauthenticating, StateAuthenticating, StateAuthenticated},
		},
		{
			name:   "forbidden while renewing is fatal",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return nil, forbidden
			},
			wantErr: vcerrors.ErrForbidden,
			path:    []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateFatal},
		},
		{
			name:   "forbidden while re-authenticating is fatal",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return nil, notRenewable
			},
			login: func(context.Context, string, string, string) (*vault.AuthResult, error) {
				return nil, &vcerrors.StoreError{Op: "login", Status: 403, Kind: vcerrors.ErrForbidden}
			},
			wantErr: vcerrors.ErrForbidden,
			path: []State{StateAuthenticated, StateRenewalDue, StateRenewing,
				StateReauthenticating, StateAuthenticating, StateFatal},
		},
		{
			name:   "unreachable store during renewal",
			cached: cachedAppRole(2*time.Hour, t0),
			opts:   appRoleOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return nil, unreachable
			},
			wantErr: vcerrors.ErrUnreachable,
			path:    []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateFatal},
		},
		{
			name:   "direct token that cannot be renewed needs a manual update",
			cached: cachedToken(2*time.Hour, true),
			opts:   baseOptions(),
			now:    t0.Add(90 * time.Minute),
			renew: func(context.Context, time.Duration) (*vault.AuthResult, error) {
				return nil, notRenewable
			},
			wantErr: vcerrors.ErrManualTokenUpdate,
			path:    []State{StateAuthenticated, StateRenewalDue, StateRenewing, StateReauthenticating, StateFatal},
		},
		{
			name:    "expired direct token needs a manual update",
			cached:  cachedToken(2*time.Hour, true),
			opts:    baseOptions(),
			now:     t0.Add(3 * time.Hour),
			wantErr: vcerrors.ErrManualTokenUpdate,
			path:    []State{StateAuthenticated, StateReauthenticating, StateFatal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := fakes.NewFakeStore()
			store.RenewSelfFunc = tt.renew
			store.LoginAppRoleFunc = tt.login
			cache := fakes.NewMemoryCache(tt.cached)
			a, _ := newAuth(t, store, cache, tt.opts, tt.now)

			outcome, err := a.Renew(context.Background(), tt.force)
			assert.Equal(t, tt.path, states(a))

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StateFatal, a.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)

			cred := a.Credential()
			require.NotNil(t, cred)
			assert.Equal(t, tt.wantToken, cred.Token)
			assert.Equal(t, tt.wantTTL, cred.TTL)
			assert.Equal(t, tt.wantToken, store.CurrentToken())
			if outcome != NotNeeded {
				assert.Equal(t, tt.wantToken, cache.Stored().Token)
				assert.Equal(t, tt.now, cred.RenewedAt)
			}
		})
	}
}

func TestLoginThenForcedRenewKeepsToken(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = loginIssues("hvs.first", 24*time.Hour)
	store.RenewSelfFunc = func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
		return &vault.AuthResult{Token: "hvs.first", TTL: inc, Renewable: true}, nil
	}
	a, _ := newAuth(t, store, fakes.NewMemoryCache(nil), appRoleOptions(), t0)

	_, err := a.Ensure(context.Background())
	require.NoError(t, err)

	outcome, err := a.Renew(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Renewed, outcome)
	assert.Equal(t, "hvs.first", a.Credential().Token)
	assert.Equal(t, 1, store.Count("LoginAppRole"))
	assert.Equal(t, 1, store.Count("RenewSelf"))
}

func TestRenewalKeepsTokenAndIssueTime(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.RenewSelfFunc = func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
		return &vault.AuthResult{Token: "hvs.cached", TTL: inc, Renewable: true}, nil
	}
	now := t0.Add(90 * time.Minute)
	cache := fakes.NewMemoryCache(cachedAppRole(2*time.Hour, t0))
	a, _ := newAuth(t, store, cache, appRoleOptions(), now)

	_, err := a.Renew(context.Background(), false)
	require.NoError(t, err)

	stored := cache.Stored()
	assert.Equal(t, "hvs.cached", stored.Token)
	assert.Equal(t, t0, stored.IssuedAt)
	assert.Equal(t, now, stored.RenewedAt)
	assert.Equal(t, []string{"RenewSelf 24h0m0s"}, store.Calls())
}

func TestEnsureProceedsWithUnrenewableTokenUntilExpiry(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	cache := fakes.NewMemoryCache(cachedToken(2*time.Hour, false))
	a, logger := newAuth(t, store, cache, baseOptions(), t0.Add(90*time.Minute))

	cred, err := a.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hvs.static", cred.Token)
	assert.Equal(t, StateAuthenticated, a.State())
	logger.AssertContains(t, "cannot be renewed")
	assert.Empty(t, store.Calls())

	// the explicit renewal path still reports it
	_, err = a.Renew(context.Background(), false)
	assert.ErrorIs(t, err, vcerrors.ErrManualTokenUpdate)
}

func TestChangedConfiguredTokenReplacesExpiredOne(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LookupSelfFunc = func(context.Context) (*vault.TokenInfo, error) {
		return &vault.TokenInfo{TTL: 720 * time.Hour, Renewable: true}, nil
	}
	opts := baseOptions()
	opts.Token = "hvs.replacement"
	cache := fakes.NewMemoryCache(cachedToken(time.Hour, true))
	a, _ := newAuth(t, store, cache, opts, t0.Add(2*time.Hour))

	outcome, err := a.Renew(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Reauthenticated, outcome)
	assert.Equal(t, "hvs.replacement", cache.Stored().Token)
}

func TestCacheSaveFailureIsEnvironmental(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = loginIssues("hvs.new", time.Hour)
	cache := fakes.NewMemoryCache(nil)
	cache.SaveErr = &vcerrors.IOError{Op: "write", Path: "/cache/default.json", Err: errors.New("insecure permissions")}
	a, _ := newAuth(t, store, cache, appRoleOptions(), t0)

	_, err := a.Ensure(context.Background())
	require.Error(t, err)
	assert.Equal(t, vcerrors.ExitEnvironment, vcerrors.ExitCode(err))
	assert.Equal(t, StateFatal, a.State())
}

func TestFatalStateStartsOverOnNextCycle(t *testing.T) {
	t.Parallel()

	calls := 0
	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = func(context.Context, string, string, string) (*vault.AuthResult, error) {
		calls++
		if calls == 1 {
			return nil, &vcerrors.StoreError{Op: "login", Kind: vcerrors.ErrUnreachable}
		}
		return &vault.AuthResult{Token: "hvs.new", TTL: time.Hour, Renewable: true}, nil
	}
	a, _ := newAuth(t, store, fakes.NewMemoryCache(nil), appRoleOptions(), t0)

	_, err := a.Ensure(context.Background())
	require.ErrorIs(t, err, vcerrors.ErrUnreachable)

	cred, err := a.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hvs.new", cred.Token)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeStore()
	store.LoginAppRoleFunc = loginIssues("hvs.init", time.Hour)
	cache := fakes.NewMemoryCache(cachedAppRole(time.Hour, t0))
	a, _ := newAuth(t, store, cache, appRoleOptions(), t0)

	cred, err := a.Login(context.Background(), credential.MethodAppRole)
	require.NoError(t, err)
	assert.Equal(t, "hvs.init", cred.Token)
	assert.Equal(t, "hvs.init", cache.Stored().Token)

	_, err = a.Login(context.Background(), credential.MethodToken)
	assert.ErrorIs(t, err, vcerrors.ErrNotAuthenticated)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		revoke    bool
		revokeErr error
		revokes   int
	}{
		{name: "revokes and clears", revoke: true, revokes: 1},
		{name: "keeps token valid", revoke: false, revokes: 0},
		{
			name:      "clears even when revocation fails",
			revoke:    true,
			revokeErr: &vcerrors.StoreError{Op: "revoke-self", Kind: vcerrors.ErrUnreachable},
			revokes:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := fakes.NewFakeStore()
			store.RevokeSelfFunc = func(context.Context) error {
				assert.Equal(t, "hvs.cached", store.CurrentToken())
				return tt.revokeErr
			}
			cache := fakes.NewMemoryCache(cachedAppRole(2*time.Hour, t0))
			a, logger := newAuth(t, store, cache, appRoleOptions(), t0)

			_, err := a.Ensure(context.Background())
			require.NoError(t, err)
			require.NoError(t, a.Logout(context.Background(), tt.revoke))

			assert.Equal(t, tt.revokes, store.Count("RevokeSelf"))
			assert.Nil(t, cache.Stored())
			assert.Empty(t, store.CurrentToken())
			assert.Equal(t, StateUnauthenticated, a.State())
			if tt.revokeErr != nil {
				logger.AssertContains(t, "Could not revoke token")
			}
		})
	}
}

func TestAutoRenewRecordsMetrics(t *testing.T) {
	renewed := metrics.GetRenewalsTotal().WithLabelValues("renewed")
	failed := metrics.GetRenewalsTotal().WithLabelValues("failed")
	beforeRenewed := testutil.ToFloat64(renewed)
	beforeFailed := testutil.ToFloat64(failed)

	store := fakes.NewFakeStore()
	store.RenewSelfFunc = func(_ context.Context, inc time.Duration) (*vault.AuthResult, error) {
		return &vault.AuthResult{Token: "hvs.cached", TTL: inc, Renewable: true}, nil
	}
	now := t0.Add(90 * time.Minute)
	a, _ := newAuth(t, store, fakes.NewMemoryCache(cachedAppRole(2*time.Hour, t0)), appRoleOptions(), now)

	outcome, err := a.AutoRenew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Renewed, outcome)
	assert.Equal(t, beforeRenewed+1, testutil.ToFloat64(renewed))
	assert.Equal(t, (24 * time.Hour).Seconds(), testutil.ToFloat64(metrics.GetTokenTTL()))

	broken, _ := newAuth(t, fakes.NewFakeStore(), fakes.NewMemoryCache(nil), baseOptions(), now)
	_, err = broken.AutoRenew(context.Background())
	require.Error(t, err)
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		valid    bool
	}{
		{StateUnauthenticated, StateAuthenticating, true},
		{StateAuthenticated, StateRenewalDue, true},
		{StateRenewalDue, StateRenewing, true},
		{StateRenewing, StateReauthenticating, true},
		{StateReauthenticating, StateAuthenticating, true},
		{StateFatal, StateUnauthenticated, true},
		{StateUnauthenticated, StateRenewing, false},
		{StateRenewing, StateRenewalDue, false},
		{StateFatal, StateAuthenticated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
