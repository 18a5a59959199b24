package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/template"
)

func NewShCommand(cfg *config.Config) *cobra.Command {
	var (
		typ    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "sh <scope> [--format bash|fish]",
		Short: "Print shell export statements",
		Long: `Print export statements for a scope, for use with eval.

Keys that are not valid shell variable names are skipped with a warning.

Examples:
  eval "$(vaultctl sh 200)"
  vaultctl sh 200 --format fish | source`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := template.ParseFormat(format, template.FormatBash, template.FormatFish)
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
			set, err := s.resolver.Resolve(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				cfg.Logger.Warn("Scope %s has no entries", args[0])
			}
			return template.New(cfg.Logger).Write(cmd.OutOrStdout(), f, set)
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().StringVarP(&format, "format", "f", "bash", "Shell syntax: bash or fish")
	return cmd
}
