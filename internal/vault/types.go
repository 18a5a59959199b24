package vault

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// AuthResult is what login and renew-self return.
type AuthResult struct {
	Token     string
	Accessor  string
	TTL       time.Duration
	Renewable bool
	Policies  []string
}

// TokenRequest describes a child token. Empty Policies inherit the
// parent's; a zero TTL takes the mount default.
type TokenRequest struct {
	Policies    []string
	TTL         time.Duration
	DisplayName string
}

// TokenInfo is the decoded lookup-self response.
type TokenInfo struct {
	TTL            time.Duration
	Renewable      bool
	Policies       []string
	DisplayName    string
	ExpireTime     string
	ExplicitMaxTTL time.Duration
	CreationTime   time.Time
}

// HealthInfo is the decoded sys/health response.
type HealthInfo struct {
	Initialized bool
	Sealed      bool
	Standby     bool
	Version     string
	ClusterName string
}

type lookupData struct {
	TTL            int64    `mapstructure:"ttl"`
	Renewable      bool     `mapstructure:"renewable"`
	Policies       []string `mapstructure:"policies"`
	DisplayName    string   `mapstructure:"display_name"`
	ExpireTime     string   `mapstructure:"expire_time"`
	ExplicitMaxTTL int64    `mapstructure:"explicit_max_ttl"`
	CreationTime   int64    `mapstructure:"creation_time"`
}

func decodeTokenInfo(data map[string]interface{}) (*TokenInfo, error) {
	var raw lookupData
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("decoding token lookup: %w", err)
	}

	info := &TokenInfo{
		TTL:            time.Duration(raw.TTL) * time.Second,
		Renewable:      raw.Renewable,
		Policies:       raw.Policies,
		DisplayName:    raw.DisplayName,
		ExpireTime:     raw.ExpireTime,
		ExplicitMaxTTL: time.Duration(raw.ExplicitMaxTTL) * time.Second,
	}
	if raw.CreationTime > 0 {
		info.CreationTime = time.Unix(raw.CreationTime, 0)
	}
	return info, nil
}
