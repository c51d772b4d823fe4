package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/config"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/hooks"
)

var (
	hooksActivate   string
	hooksDeactivate string
)

// hooksCmd groups hook script commands.
var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage environment activation hooks",
}

// hooksInstallCmd represents the hooks install command.
var hooksInstallCmd = &cobra.Command{
	Use:   "install <environment>",
	Short: "Install activation and deactivation scripts into an environment",
	Long: `Copy scripts into etc/conda/activate.d and etc/conda/deactivate.d of an
environment so they run whenever it is activated or deactivated. The folders
are created when missing; each script keeps its file name and mode.

An environment is a name under the environments root, "base" for the base
environment, or a path.

Examples:
  envcerts hooks install ml-py311 --activate set-ca.sh --deactivate unset-ca.sh
  envcerts hooks install base --activate set-ca.sh`,
	Args: cobra.ExactArgs(1),
	Run:  runHooksInstall,
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.AddCommand(hooksInstallCmd)
	hooksInstallCmd.Flags().StringVar(&hooksActivate, "activate", "", "script to run on activation")
	hooksInstallCmd.Flags().StringVar(&hooksDeactivate, "deactivate", "", "script to run on deactivation")
	hooksInstallCmd.Flags().String("root", "", "environments root")
	hooksInstallCmd.Flags().Bool("sudo", false, "retry copies through sudo on permission errors")
}

func runHooksInstall(cmd *cobra.Command, args []string) {
	if hooksActivate == "" && hooksDeactivate == "" {
		Error("pass --activate, --deactivate, or both")
		os.Exit(envcertserrors.ExitConfigError)
	}

	cfg := loadConfig(cmd, map[string]string{
		"root": config.KeyEnvironmentsRoot,
		"sudo": config.KeyUseSudo,
	})
	env := resolveEnvironment(cfg, args[0])

	installer := hooks.NewInstaller(nil, newCopier(cfg))
	installed, err := installer.Install(cmd.Context(), env.Root, hooksActivate, hooksDeactivate)
	for _, path := range installed {
		Success("Installed %s", path)
	}
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}
