package secure

import (
	"github.com/systmms/vaultctl/internal/secretset"
)

// SealedSet is a SecretSet whose values live in enclaves. Keys stay in
// plain memory; they are not secret.
type SealedSet struct {
	scope  string
	keys   []string
	values map[string]*SecureBuffer
}

// Seal moves the values of s into enclaves.
func Seal(s *secretset.SecretSet) (*SealedSet, error) {
	sealed := &SealedSet{
		scope:  s.ScopeID,
		keys:   make([]string, 0, s.Len()),
		values: make(map[string]*SecureBuffer, s.Len()),
	}

	var sealErr error
	s.Each(func(k, v string) {
		if sealErr != nil {
			return
		}
		buf, err := NewSecureBufferFromString(v)
		if err != nil {
			sealErr = err
			return
		}
		sealed.keys = append(sealed.keys, k)
		sealed.values[k] = buf
	})
	if sealErr != nil {
		sealed.Destroy()
		return nil, sealErr
	}
	return sealed, nil
}

// Keys returns the keys in their original order.
func (s *SealedSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Environ opens every value and returns KEY=VALUE pairs in order.
func (s *SealedSet) Environ() ([]string, error) {
	env := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		v, err := s.values[k].Reveal()
		if err != nil {
			return nil, err
		}
		env = append(env, k+"="+v)
	}
	return env, nil
}

// Unseal returns the plaintext set.
func (s *SealedSet) Unseal() (*secretset.SecretSet, error) {
	out := secretset.New(s.scope)
	for _, k := range s.keys {
		v, err := s.values[k].Reveal()
		if err != nil {
			return nil, err
		}
		out.Set(k, v)
	}
	return out, nil
}

// Destroy drops every enclave.
func (s *SealedSet) Destroy() {
	for _, buf := range s.values {
		buf.Destroy()
	}
}
