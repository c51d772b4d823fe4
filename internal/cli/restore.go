package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/bundle"
	"github.com/princespaghetti/envcerts/internal/config"
	"github.com/princespaghetti/envcerts/internal/environment"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

var restoreAll bool

var restoreFlags = map[string]string{
	"root": config.KeyEnvironmentsRoot,
	"base": config.KeyBaseEnvironment,
	"sudo": config.KeyUseSudo,
}

// restoreCmd represents the restore command.
var restoreCmd = &cobra.Command{
	Use:   "restore [environment...]",
	Short: "Put back the bundle saved before replacement",
	Long: `Copy ssl/backup_<name> back over ssl/<name> in the given environments.

An environment is a name under the environments root, "base" for the base
environment, or a path. Environments without a backup are reported and
skipped.

Examples:
  envcerts restore ml-py311
  envcerts restore base ./local-env
  envcerts restore --all`,
	Run: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&restoreAll, "all", false, "restore every environment")
	restoreCmd.Flags().String("root", "", "environments root")
	restoreCmd.Flags().String("base", "", "base environment")
	restoreCmd.Flags().Bool("sudo", false, "retry copies through sudo on permission errors")
}

// RestoreResult reports one restore attempt.
type RestoreResult struct {
	Env      string `json:"env"`
	Restored bool   `json:"restored"`
}

func runRestore(cmd *cobra.Command, args []string) {
	if restoreAll == (len(args) > 0) {
		Error("name the environments to restore or pass --all")
		os.Exit(envcertserrors.ExitConfigError)
	}

	cfg := loadConfig(cmd, restoreFlags)

	var envs []environment.Environment
	if restoreAll {
		all, err := allEnvironments(cfg)
		if err != nil {
			Error("%v", err)
			os.Exit(envcertserrors.ExitGeneralError)
		}
		envs = all
	} else {
		for _, arg := range args {
			envs = append(envs, resolveEnvironment(cfg, arg))
		}
	}

	results, err := restoreEnvironments(cmd.Context(), newReplacer(cfg), envs)
	for _, r := range results {
		if r.Restored {
			Success("%s: restored %s", r.Env, cfg.BundleFileName)
		} else {
			Warning("%s: no backup to restore", r.Env)
		}
	}
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}

// restoreEnvironments restores envs in order and stops at the first failure.
func restoreEnvironments(ctx context.Context, r *bundle.Replacer, envs []environment.Environment) ([]RestoreResult, error) {
	results := make([]RestoreResult, 0, len(envs))
	for _, env := range envs {
		restored, err := r.Restore(ctx, env.Root)
		if err != nil {
			return results, err
		}
		results = append(results, RestoreResult{Env: env.Name, Restored: restored})
	}
	return results, nil
}
