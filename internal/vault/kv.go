package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/secretset"
)

// kvEnvelope is the KV v2 read response. Data.Data is null when the
// latest version has been soft-deleted.
type kvEnvelope struct {
	Data struct {
		Data     *orderedmap.OrderedMap[string, json.RawMessage] `json:"data"`
		Metadata struct {
			Version      int    `json:"version"`
			DeletionTime string `json:"deletion_time"`
		} `json:"metadata"`
	} `json:"data"`
}

func trimSlashes(s string) string {
	return strings.Trim(s, "/")
}

func kvPath(mount, kind, path string) string {
	return fmt.Sprintf("%s/%s/%s", trimSlashes(mount), kind, trimSlashes(path))
}

// Read fetches the latest version of the secret at mount/path, keeping
// the key order the store returned.
func (c *APIClient) Read(ctx context.Context, mount, path string) (*secretset.SecretSet, error) {
	full := kvPath(mount, "data", path)

	var body []byte
	err := c.do(ctx, "read", full, func() error {
		resp, rerr := c.api.Logical().ReadRawWithContext(ctx, full)
		if resp != nil {
			defer resp.Body.Close()
		}
		if rerr != nil {
			return rerr
		}
		if resp == nil {
			return &api.ResponseError{StatusCode: 404}
		}
		buf := new(bytes.Buffer)
		if _, cerr := buf.ReadFrom(resp.Body); cerr != nil {
			return cerr
		}
		body = buf.Bytes()
		return nil
	})
	if err != nil {
		return nil, err
	}

	set, deleted, err := decodeKV(path, body)
	if err != nil {
		return nil, &vcerrors.StoreError{Op: "read", Path: full, Kind: vcerrors.ErrStore, Err: err}
	}
	if deleted {
		return nil, &vcerrors.StoreError{Op: "read", Path: full, Kind: vcerrors.ErrNotFound, Err: errors.New("latest version is deleted")}
	}
	return set, nil
}

func decodeKV(scope string, body []byte) (set *secretset.SecretSet, deleted bool, err error) {
	var env kvEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("decoding KV v2 response: %w", err)
	}
	if env.Data.Data == nil {
		return nil, true, nil
	}

	set = secretset.New(scope)
	for pair := env.Data.Data.Oldest(); pair != nil; pair = pair.Next() {
		set.Set(pair.Key, stringify(pair.Value))
	}
	return set, false, nil
}

// stringify renders a JSON value as an environment value: strings
// unquoted, null empty, everything else as compact JSON.
func stringify(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// Write stores entries at mount/path. Merge reads the current version
// first and writes the union; a missing secret merges as empty.
func (c *APIClient) Write(ctx context.Context, mount, path string, entries *secretset.SecretSet, policy secretset.MergePolicy) (*secretset.SecretSet, error) {
	result := entries.Clone()
	if policy == secretset.Merge {
		existing, err := c.Read(ctx, mount, path)
		switch {
		case errors.Is(err, vcerrors.ErrNotFound):
			existing = nil
		case err != nil:
			return nil, err
		}
		result = secretset.Apply(existing, entries, policy)
	}

	full := kvPath(mount, "data", path)
	payload := map[string]interface{}{"data": result.Map()}
	err := c.do(ctx, "write", full, func() error {
		_, werr := c.api.Logical().WriteWithContext(ctx, full, payload)
		return werr
	})
	if err != nil {
		return nil, err
	}
	result.ScopeID = path
	return result, nil
}

// List returns the keys under mount/path. Directories keep their
// trailing slash. A missing path lists as empty.
func (c *APIClient) List(ctx context.Context, mount, path string) ([]string, error) {
	full := kvPath(mount, "metadata", path)

	var secret *api.Secret
	err := c.do(ctx, "list", full, func() error {
		var lerr error
		secret, lerr = c.api.Logical().ListWithContext(ctx, full)
		return lerr
	})
	if errors.Is(err, vcerrors.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// Delete soft-deletes the latest version, or with purge removes every
// version and the metadata. Deleting a secret that does not exist is
// ErrNotFound.
func (c *APIClient) Delete(ctx context.Context, mount, path string, purge bool) error {
	if _, err := c.Read(ctx, mount, path); err != nil {
		if !purge || !errors.Is(err, vcerrors.ErrNotFound) {
			return err
		}
		// a soft-deleted secret can still be purged
		if _, merr := c.readMetadata(ctx, mount, path); merr != nil {
			return merr
		}
	}

	kind := "data"
	if purge {
		kind = "metadata"
	}
	full := kvPath(mount, kind, path)
	return c.do(ctx, "delete", full, func() error {
		_, derr := c.api.Logical().DeleteWithContext(ctx, full)
		return derr
	})
}

func (c *APIClient) readMetadata(ctx context.Context, mount, path string) (*api.Secret, error) {
	full := kvPath(mount, "metadata", path)
	var secret *api.Secret
	err := c.do(ctx, "read-metadata", full, func() error {
		var rerr error
		secret, rerr = c.api.Logical().ReadWithContext(ctx, full)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, &vcerrors.StoreError{Op: "read-metadata", Path: full, Status: 404, Kind: vcerrors.ErrNotFound}
	}
	return secret, nil
}
