package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
)

func NewListCommand(cfg *config.Config) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list [--type lxc|docker]",
		Short: "List the scopes stored in Vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			t, err := s.scopeType(typ)
			if err != nil {
				return err
			}
			keys, err := s.resolver.List(cmd.Context(), t)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				cfg.Logger.Info("No %s scopes under %s/%s", t, s.settings.KVMount, s.resolver.Layout().Dir(t))
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	return cmd
}
