package secretset

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// ParseEnvFile reads a .env style file into a set, keeping the order in
// which keys first appear in the file.
func ParseEnvFile(path, scope string) (*SecretSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &vcerrors.IOError{Op: "read", Path: path, Err: err}
	}
	return ParseEnv(bytes.NewReader(data), scope)
}

// ParseEnv parses .env content. Quoting, escapes, comments, blank lines
// and "export " prefixes follow godotenv.
func ParseEnv(r io.Reader, scope string) (*SecretSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing env file: %w", err)
	}

	s := New(scope)
	for _, k := range keyOrder(data, values) {
		s.Set(k, values[k])
	}
	return s, nil
}

// keyOrder recovers file order for the keys godotenv returned. Keys it
// cannot place (continuation lines of multi-line values) go last, sorted.
func keyOrder(data []byte, values map[string]string) []string {
	seen := make(map[string]bool, len(values))
	order := make([]string, 0, len(values))

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		idx := strings.IndexAny(line, "=:")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if _, ok := values[key]; ok && !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	var rest []string
	for k := range values {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// ParseAssignments turns KEY=VALUE command-line arguments into a set.
// The value may be empty and may itself contain '='.
func ParseAssignments(scope string, args []string) (*SecretSet, error) {
	s := New(scope)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q: expected KEY=VALUE", arg)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid assignment %q: empty key", arg)
		}
		s.Set(key, value)
	}
	return s, nil
}
