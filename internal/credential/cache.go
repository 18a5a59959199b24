package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secure"
)

// Cache persists one profile's credential. Load returns (nil, nil) when
// nothing usable is cached.
type Cache interface {
	Load() (*Credential, error)
	Save(*Credential) error
	Clear() error
}

// Store backends, matching the credential_store setting.
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
)

// Options selects and configures a Cache.
type Options struct {
	Store   string
	Dir     string
	Profile string
	// Address is the configured store address; a cached credential for a
	// different address is ignored.
	Address string
	Logger  *logging.Logger
}

// New returns the cache backend named by opts.Store.
func New(opts Options) (Cache, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	switch opts.Store {
	case "", StoreFile:
		return &FileCache{Dir: opts.Dir, Profile: opts.Profile, Address: opts.Address, Logger: opts.Logger}, nil
	case StoreKeyring:
		return &KeyringCache{Service: KeyringService, Profile: opts.Profile, Address: opts.Address, Logger: opts.Logger}, nil
	default:
		return nil, vcerrors.ConfigError{
			Field:      "credential_store",
			Value:      opts.Store,
			Message:    "unknown credential store",
			Suggestion: "Use 'file' or 'keyring'",
		}
	}
}

// FileCache stores the credential as JSON in <Dir>/<Profile>.json, private
// to the current user.
type FileCache struct {
	Dir     string
	Profile string
	Address string
	Logger  *logging.Logger
}

// Path is the cache file location.
func (c *FileCache) Path() string {
	return filepath.Join(c.Dir, c.Profile+".json")
}

func (c *FileCache) Load() (*Credential, error) {
	path := c.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		c.Logger.Warn("Ignoring unreadable credential cache %s: %v", path, err)
		return nil, nil
	}
	return decode(data, path, c.Address, c.Logger), nil
}

func (c *FileCache) Save(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	return secure.WritePrivateFile(c.Path(), append(data, '\n'))
}

func (c *FileCache) Clear() error {
	err := os.Remove(c.Path())
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return &vcerrors.IOError{Op: "remove", Path: c.Path(), Err: err}
}

// decode turns cached bytes into a usable credential or nil, warning about
// anything malformed.
func decode(data []byte, source, address string, logger *logging.Logger) *Credential {
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		logger.Warn("Ignoring malformed credential cache %s: %v", source, err)
		return nil
	}
	if cred.Token == "" {
		logger.Warn("Ignoring credential cache %s: no token", source)
		return nil
	}
	if address != "" && cred.Address != address {
		logger.Debug("Cached credential is for %s, not %s; ignoring it", cred.Address, address)
		return nil
	}
	return &cred
}
