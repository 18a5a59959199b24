package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/template"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		typ    string
		fields []string
		output string
	)

	cmd := &cobra.Command{
		Use:   "get <scope> [--field <key>]...",
		Short: "Show the secrets of a scope",
		Long: `Show the entries of a scope. With a single --field and the default table
output only the raw value is printed, which suits command substitution.

Examples:
  vaultctl get 200
  vaultctl get 200 --field DB_PASSWORD
  vaultctl get grafana --type docker --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := template.ParseFormat(output, template.FormatTable, template.FormatJSON, template.FormatYAML, template.FormatDotenv)
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
			set, err := s.resolver.ResolveFields(cmd.Context(), args[0], t, fields)
			if err != nil {
				return err
			}

			if len(fields) == 1 && f == template.FormatTable {
				v, _ := set.Get(fields[0])
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			return template.New(cfg.Logger).Write(cmd.OutOrStdout(), f, set)
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Only show this key (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, yaml or env")
	return cmd
}
