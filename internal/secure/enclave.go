package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer holds one secret value encrypted in memory.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	empty     bool
	destroyed bool
}

// NewSecureBuffer seals a copy of data. The caller's slice is left intact.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		// memguard has no representation for an empty enclave
		return &SecureBuffer{empty: true}, nil
	}

	src := make([]byte, len(data))
	copy(src, data)

	// NewEnclave wipes src once sealed
	return &SecureBuffer{enclave: memguard.NewEnclave(src)}, nil
}

// NewSecureBufferFromString is NewSecureBuffer for a string value.
func NewSecureBufferFromString(s string) (*SecureBuffer, error) {
	return NewSecureBuffer([]byte(s))
}

// Open decrypts the value into a locked buffer. The caller must Destroy
// the returned buffer.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.empty {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return s.enclave.Open()
}

// Reveal returns the plaintext as an ordinary string.
func (s *SecureBuffer) Reveal() (string, error) {
	locked, err := s.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	if locked.Size() == 0 {
		return "", nil
	}
	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. Further Opens return an empty buffer.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
