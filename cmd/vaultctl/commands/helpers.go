// Package commands holds one cobra command constructor per vaultctl
// subcommand. Each receives the shared *config.Config before flags are
// parsed and loads settings inside RunE.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/auth"
	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/credential"
	"github.com/systmms/vaultctl/internal/resolve"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/vault"
)

// session is everything a store-backed command needs.
type session struct {
	settings *config.Settings
	store    *vault.APIClient
	cache    credential.Cache
	auth     *auth.Authenticator
	resolver *resolve.Resolver
}

// openSession loads settings and wires store, cache, authenticator and
// resolver. Nothing touches the network yet.
func openSession(cfg *config.Config) (*session, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	s := cfg.Settings

	store, err := vault.NewAPIClient(vault.Options{
		Address:    s.VaultAddr,
		Namespace:  s.VaultNamespace,
		CACert:     s.VaultCACert,
		ClientCert: s.VaultClientCert,
		ClientKey:  s.VaultClientKey,
		SkipVerify: s.VaultSkipVerify,
		Timeout:    s.Timeout(),
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	cache, err := credential.New(credential.Options{
		Store:   s.CredentialStore,
		Dir:     cfg.CacheDir(),
		Profile: cfg.ProfileName(),
		Address: s.VaultAddr,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	a := auth.New(store, cache, auth.Options{
		Address:      s.VaultAddr,
		AppRoleMount: s.AppRoleMount,
		RoleID:       s.AppRoleRoleID,
		SecretID:     s.AppRoleSecretID,
		Token:        s.VaultToken,
		Threshold:    s.RenewThreshold(),
		Increment:    s.RenewIncrement(),
	}, cfg.Logger)

	return &session{
		settings: s,
		store:    store,
		cache:    cache,
		auth:     a,
		resolver: resolve.New(store, a, resolve.LayoutFromSettings(s), s.Timeout(), cfg.Logger),
	}, nil
}

// setFlag records a settings override given on the command line.
func setFlag(cfg *config.Config, key string, value interface{}) {
	if cfg.Flags == nil {
		cfg.Flags = make(map[string]interface{})
	}
	cfg.Flags[key] = value
}

// setSecondsFlag records a duration flag as whole seconds when the user
// set it.
func setSecondsFlag(cmd *cobra.Command, cfg *config.Config, flag, key string, d time.Duration) {
	if cmd.Flags().Changed(flag) {
		setFlag(cfg, key, int(d/time.Second))
	}
}

func addTypeFlag(cmd *cobra.Command, typ *string) {
	cmd.Flags().StringVarP(typ, "type", "t", "", "Scope type: lxc or docker (default from config)")
}

// scopeType is the --type flag or the configured default.
func (s *session) scopeType(flag string) (resolve.ScopeType, error) {
	if flag == "" {
		flag = s.settings.DefaultScopeType
	}
	return resolve.ParseScopeType(flag)
}

func addPolicyFlags(cmd *cobra.Command, merge, replace *bool) {
	cmd.Flags().BoolVar(merge, "merge", false, "Merge into existing entries (default)")
	cmd.Flags().BoolVar(replace, "replace", false, "Replace all existing entries")
	cmd.MarkFlagsMutuallyExclusive("merge", "replace")
}

func policyFrom(replace bool) secretset.MergePolicy {
	if replace {
		return secretset.Replace
	}
	return secretset.Merge
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// splitCommand separates "<scope> -- <cmd...>" arguments.
func splitCommand(cmd *cobra.Command, args []string) (string, []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args[0], args[1:]
	}
	if dash == 0 {
		return "", args
	}
	return args[0], args[dash:]
}
