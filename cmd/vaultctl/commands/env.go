package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/template"
)

func NewEnvCommand(cfg *config.Config) *cobra.Command {
	var (
		typ        string
		outputPath string
		toStdout   bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "env <scope> [--output .env | --stdout]",
		Short: "Write a scope's secrets to an env file",
		Long: `Fetch the secrets of a scope and write them to a file (".env" by default).

The file is created with mode 0600 and replaced in one step. An existing
file that other users can read is left untouched and reported as an error.
The format follows the file extension unless --format is given.

Examples:
  vaultctl env 200
  vaultctl env grafana --type docker --output /opt/grafana/.env
  vaultctl env 200 --stdout --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := template.FormatFromPath(outputPath)
			if format != "" {
				var err error
				if f, err = template.ParseFormat(format, template.FormatDotenv, template.FormatJSON, template.FormatYAML); err != nil {
					return err
				}
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

			r := template.New(cfg.Logger)
			if toStdout {
				return r.Write(cmd.OutOrStdout(), f, set)
			}
			if err := r.WriteFile(outputPath, f, set); err != nil {
				return err
			}
			cfg.Logger.Info("Wrote %d entries to %s", set.Len(), outputPath)
			cfg.Logger.Warn("File contains secrets - ensure it's added to .gitignore")
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().StringVarP(&outputPath, "output", "o", ".env", "Output file")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print to stdout instead of writing a file")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (dotenv|json|yaml, default from the file extension)")
	cmd.MarkFlagsMutuallyExclusive("output", "stdout")
	return cmd
}
