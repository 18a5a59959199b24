package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/execenv"
	"github.com/systmms/vaultctl/internal/secure"
)

// newExecutor is replaced in tests.
var newExecutor = execenv.New

func NewRunCommand(cfg *config.Config) *cobra.Command {
	var (
		typ        string
		reset      bool
		shell      bool
		printVars  bool
		workingDir string
	)

	cmd := &cobra.Command{
		Use:   "run <scope> -- <command> [args...]",
		Short: "Run a command with a scope's secrets in its environment",
		Long: `Run a command with the secrets of a scope added to its environment. The
secrets are never written to disk. vaultctl waits for the command and exits
with its exit code; SIGINT and SIGTERM are passed on as SIGTERM, followed by
SIGKILL after 10 seconds.

Examples:
  vaultctl run 200 -- ./start.sh
  vaultctl run grafana --type docker -- docker compose up -d
  vaultctl run 200 --reset -- env
  vaultctl run 200 --shell -- 'echo $DB_HOST'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, argv := splitCommand(cmd, args)
			if scope == "" || len(argv) == 0 {
				return vcerrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: vaultctl run <scope> -- <command> [args...]",
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

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			set, err := s.resolver.Resolve(ctx, scope, t)
			if err != nil {
				return err
			}
			sealed, err := secure.Seal(set)
			if err != nil {
				return fmt.Errorf("protecting secrets in memory: %w", err)
			}
			defer sealed.Destroy()
			cfg.Logger.Info("Loaded %d environment variables", set.Len())

			code, err := newExecutor(cfg.Logger).Run(ctx, execenv.RunOptions{
				Entries:    sealed,
				Reset:      reset,
				Shell:      shell,
				Argv:       argv,
				PrintVars:  printVars,
				WorkingDir: workingDir,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &vcerrors.ExitError{Code: code}
			}
			return nil
		},
	}

	addTypeFlag(cmd, &typ)
	cmd.Flags().BoolVar(&reset, "reset", false, "Start from an empty environment instead of the current one")
	cmd.Flags().BoolVar(&shell, "shell", false, "Run the command through the shell")
	cmd.Flags().BoolVar(&printVars, "print", false, "Print the variables (values masked) before running")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")
	return cmd
}
