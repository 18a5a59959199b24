// Package credential holds the cached Vault credential and the stores that
// persist it between invocations.
package credential

import (
	"encoding/json"
	"time"
)

// Method is how a credential was obtained.
type Method string

const (
	MethodAppRole Method = "approle"
	MethodToken   Method = "token"
)

// Credential is the token vaultctl authenticates with, plus what is needed
// to renew or re-issue it. There is one per configuration profile.
type Credential struct {
	Token     string
	Address   string
	Method    Method
	IssuedAt  time.Time
	RenewedAt time.Time
	// TTL is relative to RenewedAt. Zero means the token never expires.
	TTL       time.Duration
	Renewable bool

	RoleID   string
	SecretID string
}

// NeverExpires reports whether the token has no TTL.
func (c *Credential) NeverExpires() bool {
	return c.TTL == 0
}

// ExpiresAt is RenewedAt+TTL, or the zero time for a non-expiring token.
func (c *Credential) ExpiresAt() time.Time {
	if c.NeverExpires() {
		return time.Time{}
	}
	return c.RenewedAt.Add(c.TTL)
}

// RemainingTTL is the time left at now, floored at zero. It is zero for a
// non-expiring token as well; check NeverExpires to tell them apart.
func (c *Credential) RemainingTTL(now time.Time) time.Duration {
	if c.NeverExpires() {
		return 0
	}
	left := c.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether an expiring token has run out at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.NeverExpires() && !now.Before(c.ExpiresAt())
}

type wireCredential struct {
	Token      string    `json:"token"`
	Address    string    `json:"address"`
	Method     Method    `json:"method"`
	IssuedAt   time.Time `json:"issued_at"`
	RenewedAt  time.Time `json:"renewed_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	Renewable  bool      `json:"renewable"`
	RoleID     string    `json:"role_id,omitempty"`
	SecretID   string    `json:"secret_id,omitempty"`
}

// MarshalJSON stores the TTL in whole seconds.
func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCredential{
		Token:      c.Token,
		Address:    c.Address,
		Method:     c.Method,
		IssuedAt:   c.IssuedAt.UTC(),
		RenewedAt:  c.RenewedAt.UTC(),
		TTLSeconds: int64(c.TTL / time.Second),
		Renewable:  c.Renewable,
		RoleID:     c.RoleID,
		SecretID:   c.SecretID,
	})
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	var w wireCredential
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Credential{
		Token:     w.Token,
		Address:   w.Address,
		Method:    w.Method,
		IssuedAt:  w.IssuedAt,
		RenewedAt: w.RenewedAt,
		TTL:       time.Duration(w.TTLSeconds) * time.Second,
		Renewable: w.Renewable,
		RoleID:    w.RoleID,
		SecretID:  w.SecretID,
	}
	return nil
}
