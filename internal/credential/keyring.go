package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
)

// KeyringService is the OS keyring service name credentials are stored
// under.
const KeyringService = "vaultctl"

// KeyringCache stores the credential JSON in the OS keyring (Secret
// Service, macOS Keychain or Windows Credential Manager), one item per
// profile.
type KeyringCache struct {
	Service string
	Profile string
	Address string
	Logger  *logging.Logger
}

func (c *KeyringCache) source() string {
	return fmt.Sprintf("keyring %s/%s", c.Service, c.Profile)
}

func (c *KeyringCache) Load() (*Credential, error) {
	secret, err := keyring.Get(c.Service, c.Profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.Logger.Warn("Ignoring unreadable %s: %v", c.source(), err)
		return nil, nil
	}
	return decode([]byte(secret), c.source(), c.Address, c.Logger), nil
}

func (c *KeyringCache) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	if err := keyring.Set(c.Service, c.Profile, string(data)); err != nil {
		return keyringError("write", c.source(), err)
	}
	return nil
}

func (c *KeyringCache) Clear() error {
	err := keyring.Delete(c.Service, c.Profile)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return keyringError("delete", c.source(), err)
}

func keyringError(op, source string, err error) error {
	return &vcerrors.IOError{Op: op, Path: source, Err: err}
}
