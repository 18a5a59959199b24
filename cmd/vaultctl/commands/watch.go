package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/execenv"
	"github.com/systmms/vaultctl/internal/metrics"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/watch"
)

// newLauncher is replaced in tests.
var newLauncher = func() execenv.Launcher { return execenv.OSLauncher{} }

func NewWatchCommand(cfg *config.Config) *cobra.Command {
	var (
		typ         string
		interval    time.Duration
		onChange    string
		signalName  string
		metricsAddr string
		reset       bool
		shell       bool
		maxPolls    int
	)

	cmd := &cobra.Command{
		Use:   "watch <scope> -- <command> [args...]",
		Short: "Run a command and react when its secrets change",
		Long: `Run a command with the secrets of a scope and poll Vault for changes.

On a change the command is restarted (default), sent a reload signal, or,
with --on-change exec, run once to completion per change. The first poll
only starts the command. While Vault is unreachable the command keeps
running with the secrets it has.

Examples:
  vaultctl watch 200 -- ./server
  vaultctl watch web --type docker --on-change signal --signal HUP -- nginx -g 'daemon off;'
  vaultctl watch 200 --on-change exec --interval 5m -- ./reload-config.sh`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, argv := splitCommand(cmd, args)
			if scope == "" || len(argv) == 0 {
				return vcerrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: vaultctl watch <scope> -- <command> [args...]",
				}
			}
			reaction, err := watch.ParseReaction(onChange)
			if err != nil {
				return err
			}
			sig, err := parseSignal(signalName)
			if err != nil {
				return err
			}
			setSecondsFlag(cmd, cfg, "interval", "watch_interval", interval)

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			t, err := s.scopeType(typ)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				srv := metrics.NewServer(metrics.DefaultServerConfig(metricsAddr), cfg.Logger)
				if err := srv.Start(); err != nil {
					return vcerrors.ConfigError{Field: "metrics-addr", Value: metricsAddr, Message: err.Error()}
				}
				cfg.Logger.Info("Serving metrics on http://%s/metrics", srv.Addr())
				defer func() { _ = srv.Stop(context.Background()) }()
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			loop := &watch.Loop{
				Scope: scope,
				Resolve: func(ctx context.Context) (*secretset.SecretSet, error) {
					return s.resolver.Resolve(ctx, scope, t)
				},
				Launcher:     newLauncher(),
				Command:      argv,
				Shell:        shell,
				Reset:        reset,
				Stdin:        cmd.InOrStdin(),
				Stdout:       cmd.OutOrStdout(),
				Stderr:       cmd.ErrOrStderr(),
				OnChange:     reaction,
				ReloadSignal: sig,
				Interval:     s.settings.PollInterval(),
				MaxPolls:     maxPolls,
				Logger:       cfg.Logger,
			}

			code, err := loop.Run(ctx)
			cfg.Logger.Debug("Watch ended: %s", loop.Session())
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
	cmd.Flags().DurationVar(&interval, "interval", 60*time.Second, "Time between polls (default from watch_interval)")
	cmd.Flags().StringVar(&onChange, "on-change", "restart", "Reaction to a change: restart, signal or exec")
	cmd.Flags().StringVar(&signalName, "signal", "HUP", "Signal sent with --on-change signal")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9273")
	cmd.Flags().BoolVar(&reset, "reset", false, "Start from an empty environment instead of the current one")
	cmd.Flags().BoolVar(&shell, "shell", false, "Run the command through the shell")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "Stop after this many polls (0 = run until stopped)")
	_ = cmd.Flags().MarkHidden("max-polls")
	return cmd
}
