package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

func NewInitCommand(cfg *config.Config) *cobra.Command {
	var (
		roleID   string
		secretID string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "init [--role-id <id> --secret-id <id> | --token <token>]",
		Short: "Authenticate and save the connection settings",
		Long: `Log in to Vault and cache the resulting token for this profile.

With AppRole credentials the role and secret IDs are saved to the config
file so the token can be re-issued when it can no longer be renewed. A
direct token is only cached; it has to be replaced by hand once it expires.

Examples:
  vaultctl init --vault-addr https://vault.lan:8200 --role-id ... --secret-id ...
  vaultctl init --token hvs.XXXX
  vaultctl --profile staging init --role-id ... --secret-id ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := initMethod(roleID, secretID, token)
			if err != nil {
				return err
			}
			if method == credential.MethodAppRole {
				setFlag(cfg, "approle_role_id", roleID)
				setFlag(cfg, "approle_secret_id", secretID)
			} else {
				setFlag(cfg, "vault_token", token)
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			cred, err := s.auth.Login(cmd.Context(), method)
			if err != nil {
				return err
			}

			updates := map[string]interface{}{"vault_addr": s.settings.VaultAddr}
			if s.settings.VaultNamespace != "" {
				updates["vault_namespace"] = s.settings.VaultNamespace
			}
			if method == credential.MethodAppRole {
				updates["approle_role_id"] = roleID
				updates["approle_secret_id"] = secretID
			}
			if err := config.SaveProfile(cfg.ConfigPath(), cfg.ProfileName(), updates); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Authenticated to %s with %s\n", s.settings.VaultAddr, cred.Method)
			fmt.Fprintf(out, "Token TTL: %s\n", describeTTL(cred))
			cfg.Logger.Debug("Settings saved to %s (profile %s)", cfg.ConfigPath(), cfg.ProfileName())
			return nil
		},
	}

	cmd.Flags().StringVar(&roleID, "role-id", "", "AppRole role ID")
	cmd.Flags().StringVar(&secretID, "secret-id", "", "AppRole secret ID")
	cmd.Flags().StringVar(&token, "token", "", "Vault token to use directly")
	cmd.MarkFlagsRequiredTogether("role-id", "secret-id")
	cmd.MarkFlagsMutuallyExclusive("role-id", "token")

	return cmd
}

func initMethod(roleID, secretID, token string) (credential.Method, error) {
	switch {
	case roleID != "" && secretID != "":
		return credential.MethodAppRole, nil
	case token != "":
		return credential.MethodToken, nil
	}
	return "", vcerrors.UserError{
		Message:    "No credentials given",
		Suggestion: "Pass --role-id and --secret-id, or --token",
	}
}
