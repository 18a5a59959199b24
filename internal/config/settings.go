package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Settings is the resolved configuration for one profile.
// The yaml tags double as the keys used by every configuration source.
type Settings struct {
	VaultAddr       string `yaml:"vault_addr,omitempty" json:"vault_addr,omitempty"`
	VaultToken      string `yaml:"vault_token,omitempty" json:"vault_token,omitempty"`
	VaultNamespace  string `yaml:"vault_namespace,omitempty" json:"vault_namespace,omitempty"`
	VaultSkipVerify bool   `yaml:"vault_skip_verify,omitempty" json:"vault_skip_verify,omitempty"`
	VaultCACert     string `yaml:"vault_cacert,omitempty" json:"vault_cacert,omitempty"`
	VaultClientCert string `yaml:"vault_client_cert,omitempty" json:"vault_client_cert,omitempty"`
	VaultClientKey  string `yaml:"vault_client_key,omitempty" json:"vault_client_key,omitempty"`

	AppRoleRoleID   string `yaml:"approle_role_id,omitempty" json:"approle_role_id,omitempty"`
	AppRoleSecretID string `yaml:"approle_secret_id,omitempty" json:"approle_secret_id,omitempty"`
	AppRoleMount    string `yaml:"approle_mount,omitempty" json:"approle_mount,omitempty"`

	KVMount      string `yaml:"kv_mount,omitempty" json:"kv_mount,omitempty"`
	KVBasePath   string `yaml:"kv_base_path,omitempty" json:"kv_base_path,omitempty"`
	KVLxcPath    string `yaml:"kv_lxc_path,omitempty" json:"kv_lxc_path,omitempty"`
	KVDockerPath string `yaml:"kv_docker_path,omitempty" json:"kv_docker_path,omitempty"`

	// Seconds.
	TokenRenewThreshold int `yaml:"token_renew_threshold,omitempty" json:"token_renew_threshold,omitempty"`
	TokenRenewIncrement int `yaml:"token_renew_increment,omitempty" json:"token_renew_increment,omitempty"`
	RequestTimeout      int `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`
	WatchInterval       int `yaml:"watch_interval,omitempty" json:"watch_interval,omitempty"`

	DefaultScopeType string `yaml:"default_scope_type,omitempty" json:"default_scope_type,omitempty"`
	CredentialStore  string `yaml:"credential_store,omitempty" json:"credential_store,omitempty"`
	CacheDir         string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		VaultAddr:           "https://127.0.0.1:8200",
		AppRoleMount:        "approle",
		KVMount:             "proxmox",
		KVLxcPath:           "lxc",
		KVDockerPath:        "docker",
		TokenRenewThreshold: 3600,
		TokenRenewIncrement: 86400,
		RequestTimeout:      30,
		WatchInterval:       60,
		DefaultScopeType:    "lxc",
		CredentialStore:     StoreFile,
	}
}

// Credential store backends.
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
)

// RenewThreshold is TokenRenewThreshold as a duration.
func (s Settings) RenewThreshold() time.Duration {
	return time.Duration(s.TokenRenewThreshold) * time.Second
}

// RenewIncrement is TokenRenewIncrement as a duration.
func (s Settings) RenewIncrement() time.Duration {
	return time.Duration(s.TokenRenewIncrement) * time.Second
}

// Timeout is RequestTimeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// PollInterval is WatchInterval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.WatchInterval) * time.Second
}

// HasAppRole reports whether both AppRole credentials are configured.
func (s Settings) HasAppRole() bool {
	return s.AppRoleRoleID != "" && s.AppRoleSecretID != ""
}

// secretKeys are masked by Redacted.
var secretKeys = map[string]bool{
	"vault_token":       true,
	"approle_secret_id": true,
}

// Keys lists every settings key in declaration order.
func Keys() []string {
	t := reflect.TypeOf(Settings{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		keys = append(keys, name)
	}
	return keys
}

// Redacted returns the settings as key/value pairs with secrets masked,
// for display.
func (s Settings) Redacted() [][2]string {
	v := reflect.ValueOf(s)
	keys := Keys()
	out := make([][2]string, 0, len(keys))
	for i, k := range keys {
		val := v.Field(i).Interface()
		str := toString(val)
		if secretKeys[k] && str != "" {
			str = "[REDACTED]"
		}
		out = append(out, [2]string{k, str})
	}
	return out
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}
