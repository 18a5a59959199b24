// Package vault is the secret store client: a thin wrapper over the Vault
// HTTP API for AppRole login, token self-management and KV v2 access.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secretset"
)

// Client is the store surface the rest of vaultctl depends on.
type Client interface {
	LoginAppRole(ctx context.Context, mount, roleID, secretID string) (*AuthResult, error)
	LookupSelf(ctx context.Context) (*TokenInfo, error)
	RenewSelf(ctx context.Context, increment time.Duration) (*AuthResult, error)
	RevokeSelf(ctx context.Context) error

	Read(ctx context.Context, mount, path string) (*secretset.SecretSet, error)
	Write(ctx context.Context, mount, path string, entries *secretset.SecretSet, policy secretset.MergePolicy) (*secretset.SecretSet, error)
	List(ctx context.Context, mount, path string) ([]string, error)
	Delete(ctx context.Context, mount, path string, purge bool) error

	Health(ctx context.Context) (*HealthInfo, error)
	SetToken(token string)
}

// Options configures an APIClient.
type Options struct {
	Address    string
	Token      string
	Namespace  string
	CACert     string
	ClientCert string
	ClientKey  string
	SkipVerify bool
	Timeout    time.Duration
	Logger     *logging.Logger
}

// APIClient implements Client with github.com/hashicorp/vault/api.
type APIClient struct {
	api       *api.Client
	namespace string
	logger    *logging.Logger
}

var _ Client = (*APIClient)(nil)

// NewAPIClient builds a client for opts.Address. The library's own retry
// loop is disabled; the single permitted retry happens in do.
func NewAPIClient(opts Options) (*APIClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		logger.Debug("Ignoring Vault environment settings: %v", cfg.Error)
	}
	cfg.Address = opts.Address
	cfg.MaxRetries = 0
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}

	if opts.CACert != "" || opts.ClientCert != "" || opts.SkipVerify {
		if err := cfg.ConfigureTLS(&api.TLSConfig{
			CACert:     opts.CACert,
			ClientCert: opts.ClientCert,
			ClientKey:  opts.ClientKey,
			Insecure:   opts.SkipVerify,
		}); err != nil {
			return nil, vcerrors.ConfigError{
				Field:      "vault_cacert",
				Value:      opts.CACert,
				Message:    fmt.Sprintf("cannot configure TLS: %v", err),
				Suggestion: "Check the CA certificate and client certificate paths",
			}
		}
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, vcerrors.ConfigError{
			Field:   "vault_addr",
			Value:   opts.Address,
			Message: err.Error(),
		}
	}

	// NewClient picks up VAULT_TOKEN and VAULT_NAMESPACE on its own; only
	// the resolved configuration counts.
	client.ClearToken()
	client.ClearNamespace()
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}
	if opts.Namespace != "" {
		client.SetNamespace(opts.Namespace)
	}

	return &APIClient{api: client, namespace: opts.Namespace, logger: logger}, nil
}

// SetToken replaces the token sent with every request.
func (c *APIClient) SetToken(token string) {
	if token == "" {
		c.api.ClearToken()
		return
	}
	c.api.SetToken(token)
}

// Address returns the store address.
func (c *APIClient) Address() string {
	return c.api.Address()
}

// do runs fn, retrying exactly once, immediately, when the store was
// unreachable. Every other error class is returned as is.
func (c *APIClient) do(ctx context.Context, op, path string, fn func() error) error {
	err := classify(op, path, fn())
	if err != nil && isUnreachable(err) && ctx.Err() == nil {
		c.logger.Debug("%s %s: store unreachable, retrying once", op, path)
		err = classify(op, path, fn())
	}
	recordResult(op, err)
	return err
}

// LoginAppRole exchanges a Role ID and Secret ID for a token. The login
// request carries no token of its own.
func (c *APIClient) LoginAppRole(ctx context.Context, mount, roleID, secretID string) (*AuthResult, error) {
	login, err := c.api.Clone()
	if err != nil {
		return nil, err
	}
	login.ClearToken()
	if c.namespace != "" {
		login.SetNamespace(c.namespace)
	}

	path := fmt.Sprintf("auth/%s/login", trimSlashes(mount))
	var secret *api.Secret
	err = c.do(ctx, "login", path, func() error {
		var werr error
		secret, werr = login.Logical().WriteWithContext(ctx, path, map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		return werr
	})
	if err != nil {
		return nil, err
	}
	return authResult("login", path, secret)
}

// LookupSelf reports the current token's TTL and renewability.
func (c *APIClient) LookupSelf(ctx context.Context) (*TokenInfo, error) {
	const path = "auth/token/lookup-self"
	var secret *api.Secret
	err := c.do(ctx, "lookup-self", path, func() error {
		var lerr error
		secret, lerr = c.api.Auth().Token().LookupSelfWithContext(ctx)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, &vcerrors.StoreError{Op: "lookup-self", Path: path, Kind: vcerrors.ErrStore, Err: fmt.Errorf("empty response")}
	}
	return decodeTokenInfo(secret.Data)
}

// RenewSelf extends the current token by increment. The token itself
// does not change.
func (c *APIClient) RenewSelf(ctx context.Context, increment time.Duration) (*AuthResult, error) {
	const path = "auth/token/renew-self"
	var secret *api.Secret
	err := c.do(ctx, "renew-self", path, func() error {
		var rerr error
		secret, rerr = c.api.Auth().Token().RenewSelfWithContext(ctx, int(increment.Seconds()))
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return authResult("renew-self", path, secret)
}

// CreateToken issues a child of the current token. It is not part of
// Client; only the token create command needs it.
func (c *APIClient) CreateToken(ctx context.Context, req TokenRequest) (*AuthResult, error) {
	const path = "auth/token/create"
	create := &api.TokenCreateRequest{
		Policies:    req.Policies,
		DisplayName: req.DisplayName,
	}
	if req.TTL > 0 {
		create.TTL = req.TTL.String()
	}

	var secret *api.Secret
	err := c.do(ctx, "create-token", path, func() error {
		var cerr error
		secret, cerr = c.api.Auth().Token().CreateWithContext(ctx, create)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return authResult("create-token", path, secret)
}

// RevokeSelf revokes the current token.
func (c *APIClient) RevokeSelf(ctx context.Context) error {
	return c.do(ctx, "revoke-self", "auth/token/revoke-self", func() error {
		// the argument is ignored; the client token is revoked
		return c.api.Auth().Token().RevokeSelfWithContext(ctx, "")
	})
}

// Health reports seal status and version. It needs no token.
func (c *APIClient) Health(ctx context.Context) (*HealthInfo, error) {
	var resp *api.HealthResponse
	err := c.do(ctx, "health", "sys/health", func() error {
		var herr error
		resp, herr = c.api.Sys().HealthWithContext(ctx)
		return herr
	})
	if err != nil {
		return nil, err
	}
	return &HealthInfo{
		Initialized: resp.Initialized,
		Sealed:      resp.Sealed,
		Standby:     resp.Standby,
		Version:     resp.Version,
		ClusterName: resp.ClusterName,
	}, nil
}

func authResult(op, path string, secret *api.Secret) (*AuthResult, error) {
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, &vcerrors.StoreError{Op: op, Path: path, Kind: vcerrors.ErrStore, Err: fmt.Errorf("response carried no auth data")}
	}
	return &AuthResult{
		Token:     secret.Auth.ClientToken,
		Accessor:  secret.Auth.Accessor,
		TTL:       time.Duration(secret.Auth.LeaseDuration) * time.Second,
		Renewable: secret.Auth.Renewable,
		Policies:  secret.Auth.Policies,
	}, nil
}
