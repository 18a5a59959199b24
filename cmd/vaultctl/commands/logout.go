package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
)

func NewLogoutCommand(cfg *config.Config) *cobra.Command {
	var noRevoke bool

	cmd := &cobra.Command{
		Use:   "logout [--no-revoke]",
		Short: "Revoke the cached token and remove it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			if err := s.auth.Logout(cmd.Context(), !noRevoke); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of profile %s\n", cfg.ProfileName())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRevoke, "no-revoke", false, "Only remove the local cache, keep the token valid")
	return cmd
}
