package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/secretset"
)

func NewPutCommand(cfg *config.Config) *cobra.Command {
	var (
		typ     string
		merge   bool
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "put <scope> KEY=VALUE...",
		Short: "Store secrets in a scope",
		Long: `Store KEY=VALUE pairs in a scope. By default they are merged into the
existing entries; --replace discards every entry not given.

Examples:
  vaultctl put 200 DB_HOST=postgres.internal DB_PASSWORD=s3cret
  vaultctl put grafana --type docker --replace ADMIN_PASSWORD=changeme`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			incoming, err := secretset.ParseAssignments(args[0], args[1:])
			if err != nil {
				return err
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			t, err := s.scopeType(typ)
			if err != nil {
				return err
			}

			policy := policyFrom(replace)
			written, err := s.resolver.Write(cmd.Context(), args[0], t, incoming, policy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d entries in %s (%s, %d keys given)\n",
				written.Len(), args[0], policy, incoming.Len())
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	addPolicyFlags(cmd, &merge, &replace)
	return cmd
}
