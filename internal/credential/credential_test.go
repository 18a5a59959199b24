package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/tests/testutil"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample() *Credential {
	return &Credential{
		Token:     "hvs.cached",
		Address:   "https://vault.example.com:8200",
		Method:    MethodAppRole,
		IssuedAt:  t0,
		RenewedAt: t0,
		TTL:       2 * time.Hour,
		Renewable: true,
		RoleID:    "role",
		SecretID:  "secret",
	}
}

func TestRemainingTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ttl       time.Duration
		at        time.Time
		remaining time.Duration
		expired   bool
	}{
		{"fresh", 2 * time.Hour, t0, 2 * time.Hour, false},
		{"half way", 2 * time.Hour, t0.Add(time.Hour), time.Hour, false},
		{"exactly at expiry", 2 * time.Hour, t0.Add(2 * time.Hour), 0, true},
		{"long expired floors at zero", 2 * time.Hour, t0.Add(5 * time.Hour), 0, true},
		{"never expires", 0, t0.Add(1000 * time.Hour), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := sample()
			c.TTL = tt.ttl
			assert.Equal(t, tt.remaining, c.RemainingTTL(tt.at))
			assert.Equal(t, tt.expired, c.Expired(tt.at))
			assert.Equal(t, tt.ttl == 0, c.NeverExpires())
		})
	}
}

func TestCredentialJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(sample())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ttl_seconds":7200`)

	var back Credential
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *sample(), back)
}

func newFileCache(t *testing.T) *FileCache {
	t.Helper()
	return &FileCache{
		Dir:     filepath.Join(t.TempDir(), "vaultctl"),
		Profile: "default",
		Address: "https://vault.example.com:8200",
		Logger:  testutil.NewTestLogger(t).Logger,
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c := newFileCache(t)

	got, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, got, "missing file is absent")

	require.NoError(t, c.Save(sample()))
	testutil.AssertPrivateFile(t, c.Path())
	if runtime.GOOS != "windows" {
		info, err := os.Stat(c.Dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}

	got, err = c.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hvs.cached", got.Token)
	assert.Equal(t, 2*time.Hour, got.TTL)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear(), "clearing twice is fine")
	got, err = c.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileCacheTreatsBadContentAsAbsent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		warn    string
	}{
		{"malformed", "{not json", "malformed"},
		{"empty token", `{"token":"","address":"https://vault.example.com:8200"}`, "no token"},
		{"other address", `{"token":"t","address":"https://other:8200"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger := testutil.NewTestLogger(t)
			c := newFileCache(t)
			c.Logger = logger.Logger
			require.NoError(t, os.MkdirAll(c.Dir, 0o700))
			require.NoError(t, os.WriteFile(c.Path(), []byte(tt.content), 0o600))

			got, err := c.Load()
			require.NoError(t, err)
			assert.Nil(t, got)
			if tt.warn != "" {
				logger.AssertContains(t, tt.warn)
			}
		})
	}
}

func TestFileCacheRefusesSharedFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions")
	}
	t.Parallel()

	c := newFileCache(t)
	require.NoError(t, os.MkdirAll(c.Dir, 0o700))
	require.NoError(t, os.WriteFile(c.Path(), []byte("{}"), 0o644))
	require.NoError(t, os.Chmod(c.Path(), 0o644))

	err := c.Save(sample())
	require.Error(t, err)
	var ioErr *vcerrors.IOError
	assert.ErrorAs(t, err, &ioErr)
	assert.Equal(t, vcerrors.ExitEnvironment, vcerrors.ExitCode(err))

	data, _ := os.ReadFile(c.Path())
	assert.Equal(t, "{}", string(data), "existing file left untouched")
}

func TestKeyringCache(t *testing.T) {
	keyring.MockInit()

	c, err := New(Options{
		Store:   StoreKeyring,
		Profile: "staging",
		Address: "https://vault.example.com:8200",
		Logger:  testutil.NewTestLogger(t).Logger,
	})
	require.NoError(t, err)

	got, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Save(sample()))
	stored, err := keyring.Get(KeyringService, "staging")
	require.NoError(t, err)
	assert.Contains(t, stored, "hvs.cached")

	got, err = c.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, MethodAppRole, got.Method)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())
	got, err = c.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Store: "vault"})
	var cfgErr vcerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
