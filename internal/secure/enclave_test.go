package secure

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vaultctl/internal/secretset"
)

func TestSecureBufferRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "plain value", data: []byte("supersecret")},
		{name: "empty value", data: []byte{}},
		{name: "binary value", data: []byte{0x00, 0xFF, 0x10, 0x20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := bytes.Clone(tt.data)
			buf, err := NewSecureBuffer(tt.data)
			require.NoError(t, err)
			defer buf.Destroy()

			// caller's slice is not wiped
			assert.Equal(t, original, tt.data)

			got, err := buf.Reveal()
			require.NoError(t, err)
			assert.Equal(t, string(original), got)
		})
	}
}

func TestSecureBufferDestroy(t *testing.T) {
	t.Parallel()

	buf, err := NewSecureBufferFromString("hvs.token")
	require.NoError(t, err)

	buf.Destroy()
	buf.Destroy()

	got, err := buf.Reveal()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSealedSet(t *testing.T) {
	t.Parallel()

	set := secretset.FromPairs("100", "DB_HOST", "postgres.internal", "EMPTY", "", "DB_PASSWORD", "supersecret")

	sealed, err := Seal(set)
	require.NoError(t, err)
	defer sealed.Destroy()

	assert.Equal(t, []string{"DB_HOST", "EMPTY", "DB_PASSWORD"}, sealed.Keys())

	env, err := sealed.Environ()
	require.NoError(t, err)
	assert.Equal(t, []string{"DB_HOST=postgres.internal", "EMPTY=", "DB_PASSWORD=supersecret"}, env)

	back, err := sealed.Unseal()
	require.NoError(t, err)
	assert.True(t, back.Equal(set))
	assert.Equal(t, "100", back.ScopeID)
}

func TestWriteFileCreatesPrivateFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.env")
	require.NoError(t, WriteFile(path, []byte("A=1\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A=1\n", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	// full rewrite replaces the content
	require.NoError(t, WriteFile(path, []byte("B=2\n")))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "B=2\n", string(data))
}

func TestWriteFileRefusesWorldReadable(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	require.NoError(t, os.Chmod(path, 0o644))

	err := WriteFile(path, []byte("new"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsecurePermissions))

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(data))
	assert.Error(t, CheckPrivate(path))
}

func TestEnsurePrivateDir(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "cache", "vaultctl")
	require.NoError(t, EnsurePrivateDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, WritePrivateFile(filepath.Join(root, "new", "f"), []byte("x")))
}

func TestEnsurePrivateDirExistingModes(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	tests := []struct {
		name    string
		mode    os.FileMode
		wantErr bool
	}{
		{name: "owner only", mode: 0o700},
		{name: "world readable project dir", mode: 0o755},
		{name: "sticky shared dir", mode: 0o777 | os.ModeSticky},
		{name: "group writable", mode: 0o775, wantErr: true},
		{name: "world writable", mode: 0o777, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "d")
			require.NoError(t, os.Mkdir(dir, 0o700))
			require.NoError(t, os.Chmod(dir, tt.mode))

			path := filepath.Join(dir, "config.yaml")
			err := WritePrivateFile(path, []byte("vault_addr: x\n"))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSharedDirectory)
				return
			}
			require.NoError(t, err)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "the file stays private in any directory")
		})
	}
}
