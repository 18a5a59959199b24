package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vaultctl/internal/config"
	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached credential and Vault health",
		Long: `Show which Vault this profile talks to, the cached token and whether the
server is reachable. Exits 1 when no credential is cached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Profile:   %s\n", cfg.ProfileName())
			fmt.Fprintf(out, "Vault:     %s\n", s.settings.VaultAddr)

			health, err := s.store.Health(cmd.Context())
			switch {
			case err != nil:
				fmt.Fprintf(out, "Server:    unreachable (%v)\n", err)
			case health.Sealed:
				fmt.Fprintf(out, "Server:    sealed (version %s)\n", health.Version)
			default:
				fmt.Fprintf(out, "Server:    ok (version %s)\n", health.Version)
			}

			cred, err := s.auth.Peek()
			if err != nil {
				return err
			}
			if cred == nil {
				fmt.Fprintln(out, "Auth:      not authenticated")
				fmt.Fprintln(out, "           run 'vaultctl init' to log in")
				return &vcerrors.ExitError{Code: vcerrors.ExitOperation}
			}
			printCredential(out, cred, s.auth.Due(cred, time.Now()))
			return nil
		},
	}
}

func printCredential(out io.Writer, cred *credential.Credential, due bool) {
	fmt.Fprintf(out, "Auth:      %s\n", cred.Method)
	fmt.Fprintf(out, "TTL:       %s\n", describeTTL(cred))
	fmt.Fprintf(out, "Renewable: %t\n", cred.Renewable)
	if !cred.IssuedAt.IsZero() {
		fmt.Fprintf(out, "Issued:    %s\n", cred.IssuedAt.Local().Format(time.RFC3339))
	}
	if !cred.RenewedAt.IsZero() && !cred.RenewedAt.Equal(cred.IssuedAt) {
		fmt.Fprintf(out, "Renewed:   %s\n", cred.RenewedAt.Local().Format(time.RFC3339))
	}
	if due {
		fmt.Fprintln(out, "           renewal due")
	}
}

func describeTTL(cred *credential.Credential) string {
	if cred.NeverExpires() {
		return "never expires"
	}
	now := time.Now()
	if cred.Expired(now) {
		return "expired"
	}
	return fmt.Sprintf("%s (expires %s)", cred.RemainingTTL(now).Round(time.Second), cred.ExpiresAt().Local().Format(time.RFC3339))
}
