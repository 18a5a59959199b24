package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

func NewDeleteCommand(cfg *config.Config) *cobra.Command {
	var (
		typ   string
		purge bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "delete <scope> [--purge] [--force]",
		Short: "Delete the secrets of a scope",
		Long: `Delete the latest version of a scope's secrets. With --purge every version
and the metadata are removed for good. Asks for confirmation unless --force
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := args[0]
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			t, err := s.scopeType(typ)
			if err != nil {
				return err
			}

			if !force {
				what := "Delete"
				if purge {
					what = "Permanently delete all versions of"
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s scope %s? [y/N] ", what, t, scope)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					return vcerrors.UserError{Message: "Aborted", Suggestion: "Pass --force to skip the confirmation"}
				}
			}

			if err := s.resolver.Delete(cmd.Context(), scope, t, purge); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", scope)
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().BoolVar(&purge, "purge", false, "Remove every version and the metadata")
	cmd.Flags().BoolVar(&force, "force", false, "Do not ask for confirmation")
	return cmd
}
