package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/secretset"
)

func NewImportEnvCommand(cfg *config.Config) *cobra.Command {
	var (
		typ     string
		file    string
		merge   bool
		replace bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import-env <scope> [--file .env]",
		Short: "Import a .env file into a scope",
		Long: `Read KEY=VALUE lines from an env file and store them in a scope.
Comments and blank lines are skipped. --dry-run shows which keys would be
added, changed or removed without writing.

Examples:
  vaultctl import-env 200 --file /opt/app/.env
  vaultctl import-env grafana --type docker --replace --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := args[0]
			incoming, err := secretset.ParseEnvFile(file, scope)
			if err != nil {
				return err
			}
			if incoming.Len() == 0 {
				return vcerrors.UserError{Message: fmt.Sprintf("%s has no entries", file)}
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
			out := cmd.OutOrStdout()

			if dryRun {
				existing, err := s.resolver.Resolve(cmd.Context(), scope, t)
				if errors.Is(err, vcerrors.ErrNotFound) {
					existing, err = secretset.New(scope), nil
				}
				if err != nil {
					return err
				}
				changes := secretset.Diff(existing, secretset.Apply(existing, incoming, policy))
				printChanges(out, changes)
				fmt.Fprintf(out, "Dry run: nothing written to %s (%s)\n", scope, policy)
				return nil
			}

			written, err := s.resolver.Write(cmd.Context(), scope, t, incoming, policy)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %d keys from %s into %s (%s, %d entries stored)\n",
				incoming.Len(), file, scope, policy, written.Len())
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().StringVarP(&file, "file", "f", ".env", "Env file to import")
	addPolicyFlags(cmd, &merge, &replace)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the changes without writing")
	return cmd
}

func printChanges(out io.Writer, c secretset.Changes) {
	if c.Empty() {
		fmt.Fprintln(out, "No changes")
		return
	}
	for _, group := range []struct {
		mark string
		keys []string
	}{
		{"+", c.Added},
		{"~", c.Changed},
		{"-", c.Removed},
	} {
		if len(group.keys) > 0 {
			fmt.Fprintf(out, "%s %s\n", group.mark, strings.Join(group.keys, " "))
		}
	}
}
