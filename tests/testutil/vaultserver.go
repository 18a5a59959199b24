// Package testutil provides shared test infrastructure for vaultctl tests:
// an in-process fake of the Vault HTTP API, a capturing logger and file
// assertions.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeToken is a token known to a FakeVault.
type FakeToken struct {
	TTL       int // seconds remaining; 0 never expires
	MaxTTL    int // renewals never push TTL past this; 0 means unbounded
	Renewable bool
	Policies  []string
}

type fakeSecret struct {
	data    json.RawMessage // the data object exactly as written
	version int
	deleted bool
}

// FakeVault is an httptest server speaking the subset of the Vault HTTP
// API vaultctl uses: AppRole login, token lookup/renew/revoke/create, KV v2
// read/write/list/delete and sys/health.
//
// Example usage:
//
//	fv := NewFakeVault(t)
//	fv.AddToken("root", FakeToken{TTL: 0})
//	fv.SetSecret("proxmox", "lxc/200", `{"DB_HOST":"db","DB_PORT":"5432"}`)
//	client, _ := vault.NewAPIClient(vault.Options{Address: fv.URL(), Token: "root"})
type FakeVault struct {
	Server *httptest.Server

	// RoleID and SecretID are the only AppRole credentials login accepts.
	RoleID   string
	SecretID string
	// LoginTTL is the TTL of tokens issued by login.
	LoginTTL       int
	LoginMaxTTL    int
	LoginRenewable bool

	mu        sync.Mutex
	tokens    map[string]*FakeToken
	secrets   map[string]*fakeSecret
	forbidden map[string]bool
	failures  []int
	requests  []string
	issued    int
}

// NewFakeVault starts a fake server that is closed when the test ends.
func NewFakeVault(t *testing.T) *FakeVault {
	t.Helper()

	fv := &FakeVault{
		RoleID:         "test-role-id",
		SecretID:       "test-secret-id",
		LoginTTL:       3600,
		LoginRenewable: true,
		tokens:         make(map[string]*FakeToken),
		secrets:        make(map[string]*fakeSecret),
		forbidden:      make(map[string]bool),
	}
	fv.Server = httptest.NewServer(http.HandlerFunc(fv.serve))
	t.Cleanup(fv.Server.Close)
	return fv
}

// URL is the server address.
func (f *FakeVault) URL() string {
	return f.Server.URL
}

// AddToken registers a token.
func (f *FakeVault) AddToken(token string, info FakeToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := info
	f.tokens[token] = &cp
}

// Token returns a copy of a token's current state.
func (f *FakeVault) Token(token string) (FakeToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.tokens[token]
	if !ok {
		return FakeToken{}, false
	}
	return *info, true
}

// SetSecret stores rawJSON as the next version of mount/path. Key order
// in rawJSON is preserved in read responses.
func (f *FakeVault) SetSecret(mount, path, rawJSON string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(mount+"/"+path, json.RawMessage(rawJSON))
}

// Secret returns the current data of mount/path decoded into a map.
func (f *FakeVault) Secret(mount, path string) (map[string]interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[mount+"/"+path]
	if !ok || s.deleted {
		return nil, false
	}
	var m map[string]interface{}
	_ = json.Unmarshal(s.data, &m)
	return m, true
}

// Forbid makes every request for mount/path answer 403.
func (f *FakeVault) Forbid(mount, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forbidden[mount+"/"+path] = true
}

// FailNext makes the next len(statuses) requests answer with the given
// status codes, in order, regardless of path.
func (f *FakeVault) FailNext(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, statuses...)
}

// Requests returns "METHOD /path" for every request served so far.
func (f *FakeVault) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// CountRequests counts served requests whose "METHOD /path" has prefix.
func (f *FakeVault) CountRequests(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeVault) putLocked(key string, data json.RawMessage) int {
	s, ok := f.secrets[key]
	if !ok {
		s = &fakeSecret{}
		f.secrets[key] = s
	}
	s.data = data
	s.version++
	s.deleted = false
	return s.version
}

func (f *FakeVault) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method := r.Method
	if method == http.MethodGet && r.URL.Query().Get("list") == "true" {
		method = "LIST"
	}
	f.requests = append(f.requests, method+" "+r.URL.Path)

	if len(f.failures) > 0 {
		status := f.failures[0]
		f.failures = f.failures[1:]
		writeErrors(w, status, fmt.Sprintf("injected failure %d", status))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case path == "sys/health":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"initialized":  true,
			"sealed":       false,
			"standby":      false,
			"version":      "1.16.0",
			"cluster_name": "vault-fake",
		})
	case strings.HasPrefix(path, "auth/token/"):
		f.serveToken(w, r, strings.TrimPrefix(path, "auth/token/"))
	case strings.HasPrefix(path, "auth/") && strings.HasSuffix(path, "/login"):
		f.serveLogin(w, r)
	default:
		f.serveKV(w, r, method, path)
	}
}

func (f *FakeVault) serveLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoleID   string `json:"role_id"`
		SecretID string `json:"secret_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.RoleID != f.RoleID || body.SecretID != f.SecretID {
		writeErrors(w, http.StatusBadRequest, "invalid role or secret ID")
		return
	}

	f.issued++
	token := fmt.Sprintf("hvs.fake-%d", f.issued)
	f.tokens[token] = &FakeToken{
		TTL:       f.LoginTTL,
		MaxTTL:    f.LoginMaxTTL,
		Renewable: f.LoginRenewable,
		Policies:  []string{"default", "vaultctl"},
	}
	writeAuth(w, token, f.tokens[token])
}

func (f *FakeVault) serveToken(w http.ResponseWriter, r *http.Request, op string) {
	token := r.Header.Get("X-Vault-Token")
	info, ok := f.tokens[token]
	if !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	switch op {
	case "lookup-self":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"ttl":           info.TTL,
				"renewable":     info.Renewable,
				"policies":      info.Policies,
				"display_name":  "token",
				"creation_time": 1700000000,
			},
		})
	case "renew-self":
		if !info.Renewable {
			writeErrors(w, http.StatusBadRequest, "lease is not renewable")
			return
		}
		var body struct {
			Increment json.Number `json:"increment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		inc := parseSeconds(string(body.Increment))
		if inc == 0 {
			inc = 3600
		}
		if info.MaxTTL > 0 && inc > info.MaxTTL {
			inc = info.MaxTTL
		}
		info.TTL = inc
		writeAuth(w, token, info)
	case "revoke-self":
		delete(f.tokens, token)
		w.WriteHeader(http.StatusNoContent)
	case "create":
		var body struct {
			Policies    []string `json:"policies"`
			TTL         string   `json:"ttl"`
			DisplayName string   `json:"display_name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		child := &FakeToken{TTL: 2764800, Renewable: true, Policies: info.Policies}
		if len(body.Policies) > 0 {
			child.Policies = body.Policies
		}
		if body.TTL != "" {
			ttl, err := time.ParseDuration(body.TTL)
			if err != nil {
				writeErrors(w, http.StatusBadRequest, "invalid ttl")
				return
			}
			child.TTL = int(ttl.Seconds())
		}
		f.issued++
		childToken := fmt.Sprintf("hvs.child-%d", f.issued)
		f.tokens[childToken] = child
		writeAuth(w, childToken, child)
	default:
		writeErrors(w, http.StatusNotFound)
	}
}

func parseSeconds(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(s, "s"))
	if err != nil {
		return 0
	}
	return n
}

func (f *FakeVault) serveKV(w http.ResponseWriter, r *http.Request, method, path string) {
	if _, ok := f.tokens[r.Header.Get("X-Vault-Token")]; !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	mount, rest, _ := strings.Cut(path, "/")
	kind, secretPath, _ := strings.Cut(rest, "/")
	key := mount + "/" + strings.Trim(secretPath, "/")
	if f.forbidden[key] {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	switch {
	case kind == "data" && method == http.MethodGet:
		s, ok := f.secrets[key]
		if !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		if s.deleted {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"data": map[string]interface{}{
					"data":     nil,
					"metadata": map[string]interface{}{"version": s.version, "deletion_time": "2024-01-01T00:00:00Z"},
				},
			})
			return
		}
		fmt.Fprintf(w, `{"data":{"data":%s,"metadata":{"version":%d,"deletion_time":""}}}`, s.data, s.version)

	case kind == "data" && (method == http.MethodPost || method == http.MethodPut):
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || len(body.Data) == 0 {
			writeErrors(w, http.StatusBadRequest, "no data provided")
			return
		}
		version := f.putLocked(key, body.Data)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"version": version},
		})

	case kind == "data" && method == http.MethodDelete:
		if s, ok := f.secrets[key]; ok {
			s.deleted = true
		}
		w.WriteHeader(http.StatusNoContent)

	case kind == "metadata" && method == "LIST":
		keys := f.listLocked(mount, strings.Trim(secretPath, "/"))
		if len(keys) == 0 {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"keys": keys}})

	case kind == "metadata" && method == http.MethodGet:
		s, ok := f.secrets[key]
		if !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"current_version": s.version},
		})

	case kind == "metadata" && method == http.MethodDelete:
		delete(f.secrets, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErrors(w, http.StatusMethodNotAllowed, "unsupported operation")
	}
}

func (f *FakeVault) listLocked(mount, dir string) []string {
	prefix := mount + "/"
	if dir != "" {
		prefix += dir + "/"
	}
	seen := map[string]bool{}
	var keys []string
	for k := range f.secrets {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		name := strings.TrimPrefix(k, prefix)
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i+1]
		}
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}

func writeAuth(w http.ResponseWriter, token string, info *FakeToken) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth": map[string]interface{}{
			"client_token":   token,
			"accessor":       "accessor-" + token,
			"policies":       info.Policies,
			"lease_duration": info.TTL,
			"renewable":      info.Renewable,
		},
	})
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(w, status, map[string]interface{}{"errors": msgs})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
