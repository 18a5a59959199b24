package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/vault"
)

// FakeStore is a vault.Client whose behaviour is set per method through
// func fields. Unset read/write funcs serve from Secrets; unset auth funcs
// fail so tests state every auth interaction they expect.
type FakeStore struct {
	mu sync.Mutex

	LoginAppRoleFunc func(ctx context.Context, mount, roleID, secretID string) (*vault.AuthResult, error)
	LookupSelfFunc   func(ctx context.Context) (*vault.TokenInfo, error)
	RenewSelfFunc    func(ctx context.Context, increment time.Duration) (*vault.AuthResult, error)
	RevokeSelfFunc   func(ctx context.Context) error
	ReadFunc         func(ctx context.Context, mount, path string) (*secretset.SecretSet, error)
	WriteFunc        func(ctx context.Context, mount, path string, entries *secretset.SecretSet, policy secretset.MergePolicy) (*secretset.SecretSet, error)
	ListFunc         func(ctx context.Context, mount, path string) ([]string, error)
	DeleteFunc       func(ctx context.Context, mount, path string, purge bool) error
	HealthFunc       func(ctx context.Context) (*vault.HealthInfo, error)

	// Secrets backs the default Read/Write/List/Delete, keyed by mount/path.
	Secrets map[string]*secretset.SecretSet

	token string
	calls []string
}

var _ vault.Client = (*FakeStore)(nil)

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{Secrets: make(map[string]*secretset.SecretSet)}
}

// Put seeds a secret for the default Read.
func (f *FakeStore) Put(mount, path string, set *secretset.SecretSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[mount+"/"+path] = set.Clone()
}

// Calls returns the recorded method calls, e.g. "RenewSelf 24h0m0s".
func (f *FakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count counts recorded calls to method.
func (f *FakeStore) Count(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

// CurrentToken is the last token set with SetToken.
func (f *FakeStore) CurrentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *FakeStore) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeStore) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *FakeStore) LoginAppRole(ctx context.Context, mount, roleID, secretID string) (*vault.AuthResult, error) {
	f.record("LoginAppRole %s", mount)
	if f.LoginAppRoleFunc != nil {
		return f.LoginAppRoleFunc(ctx, mount, roleID, secretID)
	}
	return nil, fmt.Errorf("unexpected LoginAppRole: %w", vcerrors.ErrStore)
}

func (f *FakeStore) LookupSelf(ctx context.Context) (*vault.TokenInfo, error) {
	f.record("LookupSelf")
	if f.LookupSelfFunc != nil {
		return f.LookupSelfFunc(ctx)
	}
	return nil, fmt.Errorf("unexpected LookupSelf: %w", vcerrors.ErrStore)
}

func (f *FakeStore) RenewSelf(ctx context.Context, increment time.Duration) (*vault.AuthResult, error) {
	f.record("RenewSelf %s", increment)
	if f.RenewSelfFunc != nil {
		return f.RenewSelfFunc(ctx, increment)
	}
	return nil, fmt.Errorf("unexpected RenewSelf: %w", vcerrors.ErrStore)
}

func (f *FakeStore) RevokeSelf(ctx context.Context) error {
	f.record("RevokeSelf")
	if f.RevokeSelfFunc != nil {
		return f.RevokeSelfFunc(ctx)
	}
	return nil
}

func (f *FakeStore) Health(ctx context.Context) (*vault.HealthInfo, error) {
	f.record("Health")
	if f.HealthFunc != nil {
		return f.HealthFunc(ctx)
	}
	return &vault.HealthInfo{Initialized: true, Version: "fake"}, nil
}

func (f *FakeStore) Read(ctx context.Context, mount, path string) (*secretset.SecretSet, error) {
	f.record("Read %s/%s", mount, path)
	if f.ReadFunc != nil {
		return f.ReadFunc(ctx, mount, path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.Secrets[mount+"/"+path]
	if !ok {
		return nil, &vcerrors.StoreError{Op: "read", Path: mount + "/data/" + path, Status: 404, Kind: vcerrors.ErrNotFound}
	}
	return set.Clone(), nil
}

func (f *FakeStore) Write(ctx context.Context, mount, path string, entries *secretset.SecretSet, policy secretset.MergePolicy) (*secretset.SecretSet, error) {
	f.record("Write %s/%s %s", mount, path, policy)
	if f.WriteFunc != nil {
		return f.WriteFunc(ctx, mount, path, entries, policy)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := secretset.Apply(f.Secrets[mount+"/"+path], entries, policy)
	f.Secrets[mount+"/"+path] = result.Clone()
	return result, nil
}

func (f *FakeStore) List(ctx context.Context, mount, path string) ([]string, error) {
	f.record("List %s/%s", mount, path)
	if f.ListFunc != nil {
		return f.ListFunc(ctx, mount, path)
	}
	return []string{}, nil
}

func (f *FakeStore) Delete(ctx context.Context, mount, path string, purge bool) error {
	f.record("Delete %s/%s", mount, path)
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, mount, path, purge)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[mount+"/"+path]; !ok {
		return &vcerrors.StoreError{Op: "delete", Path: mount + "/data/" + path, Status: 404, Kind: vcerrors.ErrNotFound}
	}
	delete(f.Secrets, mount+"/"+path)
	return nil
}

// MemoryCache is an in-memory credential.Cache.
type MemoryCache struct {
	mu sync.Mutex

	Cred    *credential.Credential
	LoadErr error
	SaveErr error
	Saves   int
	Clears  int
}

var _ credential.Cache = (*MemoryCache)(nil)

// NewMemoryCache returns a cache holding a copy of cred, which may be nil.
func NewMemoryCache(cred *credential.Credential) *MemoryCache {
	m := &MemoryCache{}
	if cred != nil {
		cp := *cred
		m.Cred = &cp
	}
	return m
}

func (m *MemoryCache) Load() (*credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.Cred == nil {
		return nil, nil
	}
	cp := *m.Cred
	return &cp, nil
}

func (m *MemoryCache) Save(c *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *c
	m.Cred = &cp
	m.Saves++
	return nil
}

func (m *MemoryCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cred = nil
	m.Clears++
	return nil
}

// Stored returns a copy of the cached credential, or nil.
func (m *MemoryCache) Stored() *credential.Credential {
	cred, _ := m.Load()
	return cred
}
