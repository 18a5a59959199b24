package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand generates shell completion scripts.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for vaultctl.

Bash:
  $ source <(vaultctl completion bash)
  $ vaultctl completion bash > /etc/bash_completion.d/vaultctl

Zsh:
  $ vaultctl completion zsh > "${fpath[1]}/_vaultctl"

Fish:
  $ vaultctl completion fish > ~/.config/fish/completions/vaultctl.fish

PowerShell:
  PS> vaultctl completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
