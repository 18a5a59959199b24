package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/cmd/vaultctl/commands"
	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	code := run()
	memguard.Purge()
	os.Exit(code)
}

func run() int {
	var (
		configFile string
		profile    string
		vaultAddr  string
		namespace  string
		noColor    bool
		debug      bool
		quiet      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Vault secrets for LXC containers and Docker services",
		Long: `vaultctl keeps application secrets for Proxmox LXC containers and Docker
Compose services in a Vault KV v2 mount. It authenticates with AppRole or a
token, renews the token before it expires, and injects secrets into .env
files, shells and supervised processes.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)
			if quiet {
				logger.SetQuiet(true)
			}

			cfg.Path = configFile
			cfg.PathExplicit = cmd.Flags().Changed("config")
			cfg.Profile = profile
			cfg.Logger = logger
			if cfg.Flags == nil {
				cfg.Flags = make(map[string]interface{})
			}
			if vaultAddr != "" {
				cfg.Flags["vault_addr"] = vaultAddr
			}
			if namespace != "" {
				cfg.Flags["vault_namespace"] = namespace
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default ~/.config/vaultctl/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Configuration profile")
	rootCmd.PersistentFlags().StringVar(&vaultAddr, "vault-addr", "", "Vault address (overrides VAULT_ADDR)")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "", "Vault namespace")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print errors")

	rootCmd.AddCommand(
		commands.NewInitCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewLogoutCommand(cfg),
		commands.NewConfigCommand(cfg),
		commands.NewEnvCommand(cfg),
		commands.NewShCommand(cfg),
		commands.NewRunCommand(cfg),
		commands.NewWatchCommand(cfg),
		commands.NewGetCommand(cfg),
		commands.NewPutCommand(cfg),
		commands.NewImportEnvCommand(cfg),
		commands.NewListCommand(cfg),
		commands.NewDeleteCommand(cfg),
		commands.NewExportCommand(cfg),
		commands.NewComposeCommand(cfg),
		commands.NewTokenCommand(cfg),
		commands.NewCompletionCommand(),
	)

	err := rootCmd.Execute()
	if err == nil {
		return vcerrors.ExitOK
	}

	// a child's exit code is passed through without a message
	var exitErr *vcerrors.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", vcerrors.SimplifyError(err))
	}
	return vcerrors.ExitCode(err)
}
