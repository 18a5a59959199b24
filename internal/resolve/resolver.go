// Package resolve maps scope ids to KV v2 paths and fetches their secrets.
package resolve

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/vault"
)

// ScopeType selects the KV sub-path a scope id lives under.
type ScopeType string

const (
	ScopeLXC    ScopeType = "lxc"
	ScopeDocker ScopeType = "docker"
)

// ParseScopeType accepts "lxc" or "docker".
func ParseScopeType(s string) (ScopeType, error) {
	switch t := ScopeType(strings.ToLower(strings.TrimSpace(s))); t {
	case ScopeLXC, ScopeDocker:
		return t, nil
	}
	return "", vcerrors.UserError{
		Message:    fmt.Sprintf("unknown scope type %q", s),
		Suggestion: "Use --type lxc or --type docker",
	}
}

// KVLayout is where scopes live in the store.
type KVLayout struct {
	Mount      string
	BasePath   string
	LxcPath    string
	DockerPath string
}

// LayoutFromSettings reads the KV layout from resolved settings.
func LayoutFromSettings(s *config.Settings) KVLayout {
	return KVLayout{
		Mount:      s.KVMount,
		BasePath:   s.KVBasePath,
		LxcPath:    s.KVLxcPath,
		DockerPath: s.KVDockerPath,
	}
}

// Dir is the directory holding every scope of type t.
func (kv KVLayout) Dir(t ScopeType) string {
	sub := kv.LxcPath
	if t == ScopeDocker {
		sub = kv.DockerPath
	}
	return strings.Trim(path.Join(kv.BasePath, sub), "/")
}

// Path returns the mount and secret path of a scope. It does no I/O.
func Path(kv KVLayout, t ScopeType, scope string) (mount, secretPath string) {
	return kv.Mount, strings.Trim(path.Join(kv.Dir(t), scope), "/")
}

// ValidateScope rejects scope ids that would escape their directory.
func ValidateScope(scope string) error {
	switch {
	case strings.TrimSpace(scope) == "":
		return vcerrors.UserError{Message: "scope id is empty", Suggestion: "Pass an LXC id such as 200 or a service name"}
	case strings.HasPrefix(scope, "/"):
		return vcerrors.UserError{Message: fmt.Sprintf("scope id %q must not start with '/'", scope)}
	}
	for _, seg := range strings.Split(scope, "/") {
		if seg == ".." {
			return vcerrors.UserError{Message: fmt.Sprintf("scope id %q must not contain '..'", scope)}
		}
	}
	return nil
}

// Ensurer yields a usable credential before each store call.
type Ensurer interface {
	Ensure(ctx context.Context) (*credential.Credential, error)
}

// Resolver fetches and writes scopes through an authenticated store.
type Resolver struct {
	store   vault.Client
	auth    Ensurer
	layout  KVLayout
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a resolver. A zero timeout leaves calls unbounded apart
// from the store client's own HTTP timeout.
func New(store vault.Client, auth Ensurer, layout KVLayout, timeout time.Duration, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{store: store, auth: auth, layout: layout, timeout: timeout, logger: logger}
}

// Layout is the KV layout in use.
func (r *Resolver) Layout() KVLayout {
	return r.layout
}

func (r *Resolver) prepare(ctx context.Context, scope string, t ScopeType) (mount, secretPath string, err error) {
	if err := ValidateScope(scope); err != nil {
		return "", "", err
	}
	if _, err := r.auth.Ensure(ctx); err != nil {
		return "", "", err
	}
	mount, secretPath = Path(r.layout, t, scope)
	return mount, secretPath, nil
}

// Resolve fetches every entry of a scope.
func (r *Resolver) Resolve(ctx context.Context, scope string, t ScopeType) (*secretset.SecretSet, error) {
	mount, secretPath, err := r.prepare(ctx, scope, t)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.WithField("scope", scope).Debug("Reading %s/%s", mount, secretPath)
	set, err := r.store.Read(callCtx, mount, secretPath)
	if err != nil {
		return nil, timeoutError(err, r.timeout)
	}
	set.ScopeID = scope
	return set, nil
}

// ResolveFields fetches the whole scope and keeps only fields. The store
// sees the same request as a full read.
func (r *Resolver) ResolveFields(ctx context.Context, scope string, t ScopeType, fields []string) (*secretset.SecretSet, error) {
	set, err := r.Resolve(ctx, scope, t)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return set, nil
	}
	return set.Project(fields)
}

// Write stores entries under a scope with the given merge policy and
// returns what was written.
func (r *Resolver) Write(ctx context.Context, scope string, t ScopeType, entries *secretset.SecretSet, policy secretset.MergePolicy) (*secretset.SecretSet, error) {
	mount, secretPath, err := r.prepare(ctx, scope, t)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.WithField("scope", scope).Debug("Writing %d entries to %s/%s (%s)", entries.Len(), mount, secretPath, policy)
	written, err := r.store.Write(callCtx, mount, secretPath, entries, policy)
	if err != nil {
		return nil, timeoutError(err, r.timeout)
	}
	written.ScopeID = scope
	return written, nil
}

// Delete removes a scope; purge also drops its version history.
func (r *Resolver) Delete(ctx context.Context, scope string, t ScopeType, purge bool) error {
	mount, secretPath, err := r.prepare(ctx, scope, t)
	if err != nil {
		return err
	}

	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()
	return timeoutError(r.store.Delete(callCtx, mount, secretPath, purge), r.timeout)
}

// List returns the scope ids of type t.
func (r *Resolver) List(ctx context.Context, t ScopeType) ([]string, error) {
	if _, err := r.auth.Ensure(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.store.List(callCtx, r.layout.Mount, r.layout.Dir(t))
	if err != nil {
		return nil, timeoutError(err, r.timeout)
	}
	return keys, nil
}
