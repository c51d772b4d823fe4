package cli

import (
	"os"

	"github.com/spf13/cobra"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// completionCmd represents the completion command.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for bash, zsh, or fish.

Bash:

  $ source <(envcerts completion bash)

Zsh:

  $ envcerts completion zsh > "${fpath[1]}/_envcerts"

Fish:

  $ envcerts completion fish > ~/.config/fish/completions/envcerts.fish`,
	ValidArgs: []string{"bash", "zsh", "fish"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run:       runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) {
	var err error
	switch args[0] {
	case "bash":
		err = cmd.Root().GenBashCompletionV2(stdout, true)
	case "zsh":
		err = cmd.Root().GenZshCompletion(stdout)
	case "fish":
		err = cmd.Root().GenFishCompletion(stdout, true)
	default:
		Error("Unsupported shell: %s. Supported shells: bash, zsh, fish", args[0])
		os.Exit(envcertserrors.ExitConfigError)
	}

	if err != nil {
		Error("Failed to generate %s completion: %v", args[0], err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}
