package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	rdthemis "github.com/serious-company/rd-themis"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `Generate a shell completion script for rdthemis.

Besides subcommands and flags, the script completes registered command names
and aliases for "rdthemis exec" and the values of --encoding and
--key-encoding.

Bash:
  $ source <(rdthemis completion bash)

Zsh:
  $ rdthemis completion zsh > "${fpath[1]}/_rdthemis"

fish:
  $ rdthemis completion fish | source

PowerShell:
  PS> rdthemis completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  generateCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)

	execCmd.ValidArgsFunction = completeCommandNames
}

func generateCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletionV2(out, true)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	default:
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
}

// completeCommandNames offers registered names and aliases for the first exec argument.
func completeCommandNames(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}

	var names []string
	for _, info := range rdthemis.Commands() {
		for _, name := range []string{info.Name, info.Alias} {
			if name != "" && strings.HasPrefix(name, toComplete) {
				names = append(names, name)
			}
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func completeEncodings(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return validEncodings, cobra.ShellCompDirectiveNoFileComp
}
