// Package secretset holds the key/value entries stored under one scope,
// together with the merge and diff rules applied when they are written.
package secretset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SecretSet is an insertion-ordered set of secret entries for one scope.
// Keys are unique and case-sensitive. The zero value is not usable; call New.
type SecretSet struct {
	ScopeID string
	entries *orderedmap.OrderedMap[string, string]
}

// New returns an empty set for scope.
func New(scope string) *SecretSet {
	return &SecretSet{
		ScopeID: scope,
		entries: orderedmap.New[string, string](),
	}
}

// FromPairs builds a set from alternating key, value arguments, keeping
// their order.
func FromPairs(scope string, kv ...string) *SecretSet {
	if len(kv)%2 != 0 {
		panic("secretset.FromPairs: odd number of arguments")
	}
	s := New(scope)
	for i := 0; i < len(kv); i += 2 {
		s.Set(kv[i], kv[i+1])
	}
	return s
}

// Set stores value under key. An existing key keeps its position.
func (s *SecretSet) Set(key, value string) {
	s.entries.Set(key, value)
}

// Get returns the value stored under key.
func (s *SecretSet) Get(key string) (string, bool) {
	if s == nil || s.entries == nil {
		return "", false
	}
	return s.entries.Get(key)
}

// Delete removes key and reports whether it was present.
func (s *SecretSet) Delete(key string) bool {
	_, ok := s.entries.Delete(key)
	return ok
}

// Len returns the number of entries.
func (s *SecretSet) Len() int {
	if s == nil || s.entries == nil {
		return 0
	}
	return s.entries.Len()
}

// Keys returns the keys in entry order.
func (s *SecretSet) Keys() []string {
	keys := make([]string, 0, s.Len())
	s.Each(func(k, _ string) {
		keys = append(keys, k)
	})
	return keys
}

// Each calls fn for every entry in order.
func (s *SecretSet) Each(fn func(key, value string)) {
	if s == nil || s.entries == nil {
		return
	}
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Map returns the entries as a plain map.
func (s *SecretSet) Map() map[string]string {
	m := make(map[string]string, s.Len())
	s.Each(func(k, v string) {
		m[k] = v
	})
	return m
}

// Values returns the values in entry order, for masking them in log
// lines.
func (s *SecretSet) Values() []string {
	values := make([]string, 0, s.Len())
	s.Each(func(_, v string) {
		values = append(values, v)
	})
	return values
}

// Clone returns a deep copy.
func (s *SecretSet) Clone() *SecretSet {
	out := New(s.ScopeID)
	s.Each(out.Set)
	return out
}

// Ordered exposes the entries for encoders that understand ordered maps
// (JSON and YAML output keep entry order).
func (s *SecretSet) Ordered() *orderedmap.OrderedMap[string, string] {
	return s.entries
}

// Hash returns the hex sha256 digest of the canonical serialization:
// entries sorted by key, each written as "<len>:<key>=<len>:<value>\n".
// Two sets hash equal iff they hold the same key/value pairs.
func (s *SecretSet) Hash() string {
	keys := s.Keys()
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, _ := s.Get(k)
		fmt.Fprintf(h, "%d:%s=%d:%s\n", len(k), k, len(v), v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether both sets hold the same entries, ignoring order.
func (s *SecretSet) Equal(other *SecretSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	equal := true
	s.Each(func(k, v string) {
		if ov, ok := other.Get(k); !ok || ov != v {
			equal = false
		}
	})
	return equal
}

// Project returns a set holding only fields, in the order requested.
// Every field must exist.
func (s *SecretSet) Project(fields []string) (*SecretSet, error) {
	out := New(s.ScopeID)
	var missing []string
	for _, f := range fields {
		v, ok := s.Get(f)
		if !ok {
			missing = append(missing, f)
			continue
		}
		out.Set(f, v)
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Scope: s.ScopeID, Missing: missing, Available: s.Keys()}
	}
	return out, nil
}

// MissingFieldsError is returned by Project.
type MissingFieldsError struct {
	Scope     string
	Missing   []string
	Available []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("field(s) %s not found in %s (available: %s)",
		strings.Join(e.Missing, ", "), e.Scope, strings.Join(e.Available, ", "))
}
