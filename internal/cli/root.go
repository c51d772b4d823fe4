// Package cli provides the command-line interface for envcerts.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/bundle"
	"github.com/princespaghetti/envcerts/internal/config"
	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/envfs"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/logging"
)

// Version information (will be set by build flags in production).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "envcerts",
	Short: "Keep conda environments on the corporate CA bundle",
	Long: `envcerts replaces the CA bundle shipped inside conda environments with a
trusted source bundle.

It watches the environments directory and patches every new environment as
soon as its ssl folder appears, and it can patch, restore, and inspect the
environments that already exist.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		Info("envcerts version %s", Version)
		Info("  commit: %s", GitCommit)
		Info("  built:  %s", BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.envcerts/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "diagnostics level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "diagnostics format (text, json)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and handles errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}

// flagOverrides maps the flags the user set explicitly on cmd to config
// keys. Unset flags never override the file or environment.
func flagOverrides(cmd *cobra.Command, keys map[string]string) map[string]any {
	out := map[string]any{}
	set := func(name, key string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			out[key] = f.Value.String()
		}
	}

	set("log-level", config.KeyLogLevel)
	set("log-format", config.KeyLogFormat)
	for name, key := range keys {
		set(name, key)
	}
	return out
}

// loadConfig resolves configuration for cmd, exiting with ExitConfigError
// when it is invalid.
func loadConfig(cmd *cobra.Command, keys map[string]string) config.Config {
	cfg, err := config.NewLoader(config.WithConfigFile(cfgFile)).Load(flagOverrides(cmd, keys))
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitConfigError)
	}
	return cfg
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
}

// newCopier returns the copy capability for cfg. With use_sudo, copies that
// fail with a permission error are retried once through sudo.
func newCopier(cfg config.Config) envfs.Copier {
	direct := envfs.NewFileCopier(nil)
	if !cfg.UseSudo {
		return direct
	}
	return &envfs.FallbackCopier{Primary: direct, Privileged: envfs.NewSudoCopier()}
}

func newReplacer(cfg config.Config) *bundle.Replacer {
	return bundle.NewReplacer(cfg.TargetBundlePath, cfg.BundleFileName,
		bundle.WithCopier(newCopier(cfg)),
		bundle.WithSkipUpToDate(cfg.SkipUpToDate),
	)
}

// requireSource exits with ExitCertError unless the source bundle holds at
// least one certificate.
func requireSource(cfg config.Config) *bundle.SourceInfo {
	info, err := bundle.ValidateSource(cfg.TargetBundlePath)
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitCertError)
	}
	return info
}

// resolveEnvironment turns a command argument into an environment. "base"
// names the base environment, a bare name is looked up under the
// environments root, and anything containing a path separator is a path.
func resolveEnvironment(cfg config.Config, arg string) environment.Environment {
	switch {
	case arg == environment.BaseName && cfg.BaseEnvironment != "":
		return environment.Base(cfg.BaseEnvironment)
	case strings.ContainsRune(arg, filepath.Separator) || strings.HasPrefix(arg, "."):
		abs, err := filepath.Abs(arg)
		if err != nil {
			abs = arg
		}
		return environment.New(abs)
	default:
		return environment.New(filepath.Join(cfg.EnvironmentsRoot, arg))
	}
}

// allEnvironments returns the base environment (when configured and present)
// followed by every environment under the root.
func allEnvironments(cfg config.Config) ([]environment.Environment, error) {
	var envs []environment.Environment
	if cfg.BaseEnvironment != "" {
		if info, err := os.Stat(cfg.BaseEnvironment); err == nil && info.IsDir() {
			envs = append(envs, environment.Base(cfg.BaseEnvironment))
		}
	}
	children, err := environment.List(cfg.EnvironmentsRoot)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	return append(envs, children...), nil
}
