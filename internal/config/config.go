package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secure"
)

// DefaultProfile is used when no --profile is given.
const DefaultProfile = "default"

// DefaultSystemPath is the machine-wide file written by the installer.
const DefaultSystemPath = "/etc/vaultctl/config"

//go:embed schema.json
var settingsSchema []byte

var profileName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// envAliases maps the conventional Vault variables onto settings keys.
// They are honoured in the environment and in the system file.
var envAliases = map[string]string{
	"VAULT_ADDR":        "vault_addr",
	"VAULT_TOKEN":       "vault_token",
	"VAULT_NAMESPACE":   "vault_namespace",
	"VAULT_SKIP_VERIFY": "vault_skip_verify",
	"VAULT_CACERT":      "vault_cacert",
	"VAULT_CLIENT_CERT": "vault_client_cert",
	"VAULT_CLIENT_KEY":  "vault_client_key",
	"VAULT_ROLE_ID":     "approle_role_id",
	"VAULT_SECRET_ID":   "approle_secret_id",
}

// Config holds the runtime configuration. Command constructors receive it
// before flags are parsed; Load assembles Settings afterwards.
type Config struct {
	Path         string // user YAML file; empty means DefaultPath()
	PathExplicit bool   // set when --config was given; a missing file is then an error
	SystemPath   string // empty means DefaultSystemPath
	Profile      string
	Logger       *logging.Logger
	Flags        map[string]interface{} // settings keys set on the command line
	Settings     *Settings

	// Getenv defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
}

// DefaultPath returns $XDG_CONFIG_HOME/vaultctl/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "vaultctl", "config.yaml")
}

// DefaultCacheDir returns $XDG_CACHE_HOME/vaultctl.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(dir, "vaultctl")
}

// ConfigPath returns the user file in effect.
func (c *Config) ConfigPath() string {
	if c.Path != "" {
		return c.Path
	}
	return DefaultPath()
}

// ProfileName returns the active profile.
func (c *Config) ProfileName() string {
	if c.Profile == "" {
		return DefaultProfile
	}
	return c.Profile
}

// CacheDir returns the credential cache directory in effect.
func (c *Config) CacheDir() string {
	if c.Settings != nil && c.Settings.CacheDir != "" {
		return c.Settings.CacheDir
	}
	return DefaultCacheDir()
}

// Load assembles Settings from, lowest to highest precedence: defaults,
// the system file, the user YAML file, the environment, and flags. The
// result is validated before Load returns. Calling Load again is a no-op.
func (c *Config) Load() error {
	if c.Settings != nil {
		return nil
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}

	profile := c.ProfileName()
	if !profileName.MatchString(profile) || profile == "." || profile == ".." {
		return vcerrors.ConfigError{
			Field:      "profile",
			Value:      profile,
			Message:    "invalid profile name",
			Suggestion: "Use letters, digits, '.', '_' or '-'",
		}
	}

	s := Defaults()

	if err := c.applySystemFile(&s); err != nil {
		return err
	}
	if err := c.applyUserFile(&s, profile); err != nil {
		return err
	}
	if err := decodeInto(&s, c.environment(), "environment"); err != nil {
		return err
	}
	if err := decodeInto(&s, c.Flags, "command line"); err != nil {
		return err
	}

	if err := s.Validate(); err != nil {
		return err
	}

	c.Settings = &s
	return nil
}

func (c *Config) applySystemFile(s *Settings) error {
	path := c.SystemPath
	if path == "" {
		path = DefaultSystemPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			// typically root-owned; unprivileged users fall through to their own file
			c.Logger.Debug("Skipping system config %s: %v", path, err)
		}
		return nil
	}

	raw, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return vcerrors.ConfigError{
			Field:      path,
			Message:    fmt.Sprintf("cannot parse system config: %v", err),
			Suggestion: "Use KEY=VALUE lines such as VAULT_ADDR=https://vault.example.com:8200",
		}
	}

	values := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if key, ok := envAliases[k]; ok {
			values[key] = v
		} else if key, ok := prefixedKey(k); ok {
			values[key] = v
		}
	}
	c.Logger.Debug("Loaded system config %s", path)
	return decodeInto(s, values, path)
}

func (c *Config) applyUserFile(s *Settings, profile string) error {
	path := c.ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if c.PathExplicit {
				return vcerrors.ConfigError{
					Field:      "config",
					Value:      path,
					Message:    "configuration file not found",
					Suggestion: "Run 'vaultctl init' to create it",
				}
			}
			if profile != DefaultProfile {
				return unknownProfile(profile, path)
			}
			return nil
		}
		return &vcerrors.IOError{Op: "read", Path: path, Err: err}
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return vcerrors.ConfigError{
			Field:      path,
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	if err := validateDocument(doc); err != nil {
		return vcerrors.ConfigError{
			Field:      path,
			Message:    err.Error(),
			Suggestion: "Run 'vaultctl config' to list the supported keys",
		}
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return vcerrors.ConfigError{Field: path, Message: err.Error()}
	}

	var profiles struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return vcerrors.ConfigError{Field: path, Message: err.Error()}
	}
	if node, ok := profiles.Profiles[profile]; ok {
		if err := node.Decode(s); err != nil {
			return vcerrors.ConfigError{Field: "profiles." + profile, Message: err.Error()}
		}
	} else if profile != DefaultProfile {
		return unknownProfile(profile, path)
	}

	if (s.VaultToken != "" || s.AppRoleSecretID != "") && secure.CheckPrivate(path) != nil {
		c.Logger.Warn("%s holds credentials but is readable by other users; run 'chmod 600 %s'", path, path)
	}
	c.Logger.Debug("Loaded config %s (profile %s)", path, profile)
	return nil
}

func unknownProfile(profile, path string) error {
	return vcerrors.ConfigError{
		Field:      "profile",
		Value:      profile,
		Message:    fmt.Sprintf("profile not defined in %s", path),
		Suggestion: "Add it under 'profiles:' or run 'vaultctl init --profile " + profile + "'",
	}
}

func (c *Config) environment() map[string]interface{} {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.LookupEnv
	}

	values := make(map[string]interface{})
	for name, key := range envAliases {
		if v, ok := getenv(name); ok && v != "" {
			values[key] = v
		}
	}
	// VAULTCTL_* wins over the generic VAULT_* names
	for _, key := range Keys() {
		if v, ok := getenv("VAULTCTL_" + strings.ToUpper(key)); ok && v != "" {
			values[key] = v
		}
	}
	return values
}

func prefixedKey(name string) (string, bool) {
	if !strings.HasPrefix(name, "VAULTCTL_") {
		return "", false
	}
	key := strings.ToLower(strings.TrimPrefix(name, "VAULTCTL_"))
	for _, k := range Keys() {
		if k == key {
			return key, true
		}
	}
	return "", false
}

func decodeInto(s *Settings, values map[string]interface{}, source string) error {
	if len(values) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           s,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(values); err != nil {
		return vcerrors.ConfigError{
			Field:   source,
			Message: err.Error(),
		}
	}
	return nil
}

// validateDocument checks the top level and every profile against the
// embedded schema.
func validateDocument(doc map[string]interface{}) error {
	if doc == nil {
		return nil
	}

	top := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k != "profiles" {
			top[k] = v
		}
	}
	if err := validateSettings("", top); err != nil {
		return err
	}

	raw, ok := doc["profiles"]
	if !ok || raw == nil {
		return nil
	}
	profiles, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("profiles must be a mapping of profile name to settings")
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !profileName.MatchString(name) {
			return fmt.Errorf("invalid profile name %q", name)
		}
		body, ok := profiles[name].(map[string]interface{})
		if !ok {
			return fmt.Errorf("profile %q must be a mapping", name)
		}
		if err := validateSettings("profiles."+name+".", body); err != nil {
			return err
		}
	}
	return nil
}

func validateSettings(prefix string, body map[string]interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal data for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(settingsSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, prefix+desc.String())
	}
	return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

// Validate fails fast on settings that would otherwise surface as
// confusing network errors.
func (s Settings) Validate() error {
	u, err := url.Parse(s.VaultAddr)
	if s.VaultAddr == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return vcerrors.ConfigError{
			Field:      "vault_addr",
			Value:      s.VaultAddr,
			Message:    "a valid http(s) URL is required",
			Suggestion: "Set VAULT_ADDR, e.g. https://vault.example.com:8200",
		}
	}

	for _, f := range []struct {
		key   string
		value string
	}{
		{"approle_mount", s.AppRoleMount},
		{"kv_mount", s.KVMount},
	} {
		if strings.Trim(f.value, "/") == "" {
			return vcerrors.ConfigError{Field: f.key, Message: "must not be empty"}
		}
	}

	for _, f := range []struct {
		key   string
		value int
	}{
		{"token_renew_threshold", s.TokenRenewThreshold},
		{"token_renew_increment", s.TokenRenewIncrement},
		{"request_timeout", s.RequestTimeout},
		{"watch_interval", s.WatchInterval},
	} {
		if f.value <= 0 {
			return vcerrors.ConfigError{
				Field:   f.key,
				Value:   f.value,
				Message: "must be a positive number of seconds",
			}
		}
	}

	switch s.DefaultScopeType {
	case "lxc", "docker":
	default:
		return vcerrors.ConfigError{
			Field:      "default_scope_type",
			Value:      s.DefaultScopeType,
			Message:    "unknown scope type",
			Suggestion: "Use 'lxc' or 'docker'",
		}
	}

	switch s.CredentialStore {
	case StoreFile, StoreKeyring:
	default:
		return vcerrors.ConfigError{
			Field:      "credential_store",
			Value:      s.CredentialStore,
			Message:    "unknown credential store",
			Suggestion: "Use 'file' or 'keyring'",
		}
	}

	if (s.AppRoleRoleID == "") != (s.AppRoleSecretID == "") {
		return vcerrors.ConfigError{
			Field:      "approle_secret_id",
			Message:    "approle_role_id and approle_secret_id must be set together",
			Suggestion: "Run 'vaultctl init --role-id <id> --secret-id <id>'",
		}
	}
	if (s.VaultClientCert == "") != (s.VaultClientKey == "") {
		return vcerrors.ConfigError{
			Field:   "vault_client_key",
			Message: "vault_client_cert and vault_client_key must be set together",
		}
	}
	return nil
}

// SaveProfile merges updates into the YAML file at path, under the top
// level for the default profile or under profiles.<name> otherwise, and
// rewrites the file with owner-only permissions. An empty string value
// removes the key.
func SaveProfile(path, profile string, updates map[string]interface{}) error {
	doc := map[string]interface{}{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return vcerrors.ConfigError{Field: path, Message: "invalid YAML syntax in configuration file"}
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return &vcerrors.IOError{Op: "read", Path: path, Err: err}
	}

	target := doc
	if profile != "" && profile != DefaultProfile {
		profiles, _ := doc["profiles"].(map[string]interface{})
		if profiles == nil {
			profiles = map[string]interface{}{}
			doc["profiles"] = profiles
		}
		body, _ := profiles[profile].(map[string]interface{})
		if body == nil {
			body = map[string]interface{}{}
			profiles[profile] = body
		}
		target = body
	}

	for k, v := range updates {
		if str, ok := v.(string); ok && str == "" {
			delete(target, k)
			continue
		}
		target[k] = v
	}

	if err := validateDocument(doc); err != nil {
		return vcerrors.ConfigError{Field: path, Message: err.Error()}
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	header := []byte("# vaultctl configuration, written by 'vaultctl init'\n")
	return secure.WritePrivateFile(path, append(header, out...))
}
