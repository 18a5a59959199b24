package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/auth"
	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/metrics"
	"github.com/systmms/vaultctl/internal/vault"
)

func NewTokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect, renew and create tokens",
	}

	cmd.AddCommand(
		newTokenStatusCommand(cfg),
		newTokenRenewCommand(cfg),
		newTokenCheckCommand(cfg),
		newTokenAutoRenewCommand(cfg),
		newTokenCreateCommand(cfg),
	)
	return cmd
}

func newTokenStatusCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached token without contacting Vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			cred, err := s.auth.Peek()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cred == nil {
				fmt.Fprintln(out, "not authenticated")
				return &vcerrors.ExitError{Code: vcerrors.ExitOperation}
			}
			printCredential(out, cred, s.auth.Due(cred, time.Now()))
			fmt.Fprintf(out, "Threshold: %s\n", s.auth.Threshold())
			return nil
		},
	}
}

func newTokenRenewCommand(cfg *config.Config) *cobra.Command {
	var (
		increment time.Duration
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "renew [--increment 24h] [--force]",
		Short: "Renew the token if it is due",
		Long: `Renew the cached token when its remaining TTL is below the threshold, or
always with --force. An AppRole token that cannot be renewed any further is
replaced by a fresh login.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setSecondsFlag(cmd, cfg, "increment", "token_renew_increment", increment)
			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			outcome, err := s.auth.Renew(cmd.Context(), force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch outcome {
			case auth.NotNeeded:
				fmt.Fprintln(out, "Renewal not needed")
			case auth.Renewed:
				fmt.Fprintln(out, "Token renewed")
			case auth.Reauthenticated:
				fmt.Fprintln(out, "Logged in again with a new token")
			}
			if cred := s.auth.Credential(); cred != nil {
				fmt.Fprintf(out, "TTL: %s\n", describeTTL(cred))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&increment, "increment", 24*time.Hour, "Requested TTL (default from token_renew_increment)")
	cmd.Flags().BoolVar(&force, "force", false, "Renew even if the token is not due")
	return cmd
}

func newTokenCheckCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit 1 if the token needs renewal",
		Long: `Check the cached token without contacting Vault. Exits 0 while the token
is above the renewal threshold and 1 when it is due, expired or missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			cred, err := s.auth.Peek()
			if err != nil {
				return err
			}
			if cred == nil {
				return vcerrors.ErrNotAuthenticated
			}

			out := cmd.OutOrStdout()
			now := time.Now()
			switch {
			case cred.Expired(now):
				fmt.Fprintln(out, "Token expired")
				return &vcerrors.ExitError{Code: vcerrors.ExitOperation}
			case s.auth.Due(cred, now):
				fmt.Fprintf(out, "Renewal needed: %s left, threshold %s\n",
					cred.RemainingTTL(now).Round(time.Second), s.auth.Threshold())
				return &vcerrors.ExitError{Code: vcerrors.ExitOperation}
			}
			fmt.Fprintf(out, "Token OK: %s\n", describeTTL(cred))
			return nil
		},
	}
}

func newTokenAutoRenewCommand(cfg *config.Config) *cobra.Command {
	var (
		quiet     bool
		threshold time.Duration
		increment time.Duration
		textfile  string
		every     time.Duration
		schedule  string
	)

	cmd := &cobra.Command{
		Use:   "auto-renew",
		Short: "Unattended renewal for timers and cron",
		Long: `Renew the token if it is due, log in again if it cannot be renewed, and
exit. Meant for a systemd timer; --quiet only prints errors.

With --every or --schedule the command stays in the foreground and repeats
the check, which suits containers without a timer.

Examples:
  vaultctl token auto-renew --quiet
  vaultctl token auto-renew --metrics-textfile /var/lib/node_exporter/vaultctl.prom
  vaultctl token auto-renew --every 30m
  vaultctl token auto-renew --schedule '0 */6 * * *'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				cfg.Logger.SetQuiet(true)
			}
			if every > 0 && schedule != "" {
				return vcerrors.UserError{Message: "--every and --schedule cannot be combined"}
			}
			spec := schedule
			if every > 0 {
				spec = auth.EverySpec(every)
			}
			if spec != "" {
				if err := auth.ValidateSchedule(spec); err != nil {
					return err
				}
			}

			setSecondsFlag(cmd, cfg, "threshold", "token_renew_threshold", threshold)
			setSecondsFlag(cmd, cfg, "increment", "token_renew_increment", increment)
			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			check := func(ctx context.Context) error {
				outcome, err := s.auth.AutoRenew(ctx)
				if textfile != "" {
					if werr := metrics.WriteTextfile(textfile); werr != nil {
						cfg.Logger.Error("Could not write metrics: %v", werr)
						if err == nil {
							err = werr
						}
					}
				}
				if err != nil {
					return err
				}
				switch outcome {
				case auth.Renewed:
					cfg.Logger.Info("Token renewed")
				case auth.Reauthenticated:
					cfg.Logger.Info("Logged in again with a new token")
				default:
					cfg.Logger.Debug("Renewal not needed")
				}
				return nil
			}

			if spec == "" {
				return check(cmd.Context())
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return auth.Schedule(ctx, spec, cfg.Logger, func(ctx context.Context) {
				if err := check(ctx); err != nil {
					cfg.Logger.Error("Renewal failed: %v", err)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Only print errors")
	cmd.Flags().DurationVar(&threshold, "threshold", time.Hour, "Renew when less than this is left (default from token_renew_threshold)")
	cmd.Flags().DurationVar(&increment, "increment", 24*time.Hour, "Requested TTL (default from token_renew_increment)")
	cmd.Flags().StringVar(&textfile, "metrics-textfile", "", "Write Prometheus metrics to this file for node_exporter")
	cmd.Flags().DurationVar(&every, "every", 0, "Stay in the foreground and check at this interval")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Stay in the foreground and check on this cron schedule")
	return cmd
}

func newTokenCreateCommand(cfg *config.Config) *cobra.Command {
	var (
		policies  []string
		ttl       time.Duration
		name      string
		tokenOnly bool
	)

	cmd := &cobra.Command{
		Use:   "create [--policy name]... [--ttl 24h] [--name label]",
		Short: "Create a child token",
		Long: `Create a child of the cached token, for example to hand a read-only token
to a single container. Without --policy the child inherits the parent's
policies. The new token is printed once and never cached.

Examples:
  vaultctl token create --policy lxc-200-read --ttl 720h --name lxc-200
  TOKEN=$(vaultctl token create --policy backup --token-only)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl < 0 {
				return vcerrors.UserError{Message: "--ttl must not be negative"}
			}
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			if _, err := s.auth.Ensure(cmd.Context()); err != nil {
				return err
			}

			res, err := s.store.CreateToken(cmd.Context(), vault.TokenRequest{
				Policies:    policies,
				TTL:         ttl,
				DisplayName: name,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if tokenOnly {
				fmt.Fprintln(out, res.Token)
				return nil
			}
			childTTL := "never expires"
			if res.TTL > 0 {
				childTTL = res.TTL.String()
			}
			fmt.Fprintf(out, "Token:     %s\n", res.Token)
			fmt.Fprintf(out, "Policies:  %s\n", strings.Join(res.Policies, ", "))
			fmt.Fprintf(out, "TTL:       %s\n", childTTL)
			fmt.Fprintf(out, "Renewable: %t\n", res.Renewable)
			cfg.Logger.Warn("Store this token somewhere safe; it is shown only once")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policies, "policy", nil, "Policy for the new token (repeatable, default the parent's)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "TTL of the new token (default the mount's)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().BoolVar(&tokenOnly, "token-only", false, "Print only the token")
	return cmd
}
