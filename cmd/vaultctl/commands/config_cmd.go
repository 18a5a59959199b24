package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
)

func NewConfigCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Show the settings in effect for the active profile after merging the
system file, the config file, the environment and flags. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# config file: %s\n", cfg.ConfigPath())
			fmt.Fprintf(out, "# profile:     %s\n", cfg.ProfileName())
			fmt.Fprintf(out, "# cache dir:   %s\n", cfg.CacheDir())
			for _, kv := range cfg.Settings.Redacted() {
				if kv[1] == "" {
					continue
				}
				fmt.Fprintf(out, "%-22s %s\n", kv[0], kv[1])
			}
			return nil
		},
	}
}
