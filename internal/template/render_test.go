package template

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/secretset"
	tu "github.com/systmms/vaultctl/tests/testutil"
)

func scope100() *secretset.SecretSet {
	return secretset.FromPairs("100", "DB_HOST", "postgres.internal", "DB_PASSWORD", "supersecret")
}

func TestDotenvScope100(t *testing.T) {
	t.Parallel()

	out, err := New(nil).Render(FormatDotenv, scope100())
	require.NoError(t, err)
	assert.Equal(t, "DB_HOST=postgres.internal\nDB_PASSWORD=supersecret\n", string(out))
}

func TestShellQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		posix string
		fish  string
	}{
		{"plain", "abc", `'abc'`, `'abc'`},
		{"single quote", "it's", `'it'"'"'s'`, `'it\'s'`},
		{"trailing backslash", `C:\dir\`, `'C:\dir\'`, `'C:\\dir\\'`},
		{"dollar", "$HOME", `'$HOME'`, `'$HOME'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.posix, shellQuote(tt.value))
			assert.Equal(t, tt.fish, fishQuote(tt.value))
		})
	}
}

func TestDotenvValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "abc123", "abc123"},
		{"empty", "", ""},
		{"quote only", `a"b`, `a"b`},
		{"space", "hello world", `"hello world"`},
		{"equals", "a=b", `"a=b"`},
		{"tab", "a\tb", "\"a\tb\""},
		{"newline", "line1\nline2", `"line1\nline2"`},
		{"escapes inside quotes", `C:\dir "x"`, `"C:\\dir \"x\""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dotenvValue(tt.value))
		})
	}
}

func TestDotenvParsesBack(t *testing.T) {
	t.Parallel()

	set := secretset.FromPairs("", "A", "x y", "B", "k=v", "C", "multi\nline", "D", "plain")
	out, err := New(nil).Render(FormatDotenv, set)
	require.NoError(t, err)

	parsed, err := godotenv.Unmarshal(string(out))
	require.NoError(t, err)
	assert.Equal(t, set.Map(), parsed)
}

func TestShellExport(t *testing.T) {
	t.Parallel()

	set := secretset.FromPairs("", "TOKEN", "it's", "bad-key", "x", "URL", "https://a/b?c=d")

	logger := tu.NewTestLogger(t)
	r := New(logger.Logger)

	bash, err := r.Render(FormatBash, set)
	require.NoError(t, err)
	assert.Equal(t, "export TOKEN='it'\"'\"'s'\nexport URL='https://a/b?c=d'\n", string(bash))
	logger.AssertContains(t, `Skipping "bad-key"`)

	fish, err := r.Render(FormatFish, set)
	require.NoError(t, err)
	assert.Equal(t, "set -gx TOKEN 'it\\'s'\nset -gx URL 'https://a/b?c=d'\n", string(fish))
}

func TestJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	set := secretset.FromPairs("", "Z", "1", "A", "true")
	out, err := New(nil).Render(FormatJSON, set)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"Z\": \"1\",\n  \"A\": \"true\"\n}\n", string(out))
}

func TestYAMLKeepsOrderAndStrings(t *testing.T) {
	t.Parallel()

	set := secretset.FromPairs("", "PORT", "5432", "DEBUG", "true", "NAME", "app")
	out, err := New(nil).Render(FormatYAML, set)
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(out, &doc))
	mapping := doc.Content[0]
	require.Len(t, mapping.Content, 6)
	assert.Equal(t, "PORT", mapping.Content[0].Value)
	assert.Equal(t, "DEBUG", mapping.Content[2].Value)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "5432", decoded["PORT"])
	assert.Equal(t, "true", decoded["DEBUG"])
}

func TestTable(t *testing.T) {
	t.Parallel()

	out, err := New(nil).Render(FormatTable, scope100())
	require.NoError(t, err)
	tu.AssertLinesContain(t, string(out), []string{"KEY", "DB_HOST", "postgres.internal"})
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("env")
	require.NoError(t, err)
	assert.Equal(t, FormatDotenv, f)

	f, err = ParseFormat("YML", FormatDotenv, FormatJSON, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("fish", FormatDotenv, FormatJSON)
	assert.Error(t, err)
	assert.Equal(t, vcerrors.ExitOperation, vcerrors.ExitCode(err))
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatJSON, FormatFromPath("secrets.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("app.yml"))
	assert.Equal(t, FormatDotenv, FormatFromPath(".env"))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env")
	r := New(nil)

	require.NoError(t, r.WriteFile(path, FormatDotenv, scope100()))
	tu.AssertFileContents(t, path, "DB_HOST=postgres.internal\nDB_PASSWORD=supersecret\n")
	tu.AssertPrivateFile(t, path)

	// A second write replaces the content whole.
	require.NoError(t, r.WriteFile(path, FormatDotenv, secretset.FromPairs("", "ONLY", "one")))
	tu.AssertFileContents(t, path, "ONLY=one\n")
}

func TestWriteFileRefusesSharedFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OLD=1\n"), 0o644))

	err := New(nil).WriteFile(path, FormatDotenv, scope100())
	require.Error(t, err)
	assert.Equal(t, vcerrors.ExitEnvironment, vcerrors.ExitCode(err))
	tu.AssertFileContents(t, path, "OLD=1\n")
}
