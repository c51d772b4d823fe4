package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/config"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

var cleanDryRun bool

// cleanCmd represents the clean command.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove files left behind by interrupted copies",
	Long: `Remove temporary copy files (*.envcerts.tmp) from the ssl folder of every
environment, and the outcome log's lock file unless a writer holds it.

Examples:
  envcerts clean
  envcerts clean --dry-run`,
	Args: cobra.NoArgs,
	Run:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "List files without removing them")
}

func runClean(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, nil)

	files, err := findLeftovers(cfg)
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}

	if len(files) == 0 {
		Success("No temporary files found")
		return
	}

	removed := 0
	for _, file := range files {
		if cleanDryRun {
			Info("  Would remove: %s", file)
			continue
		}
		if err := os.Remove(file); err != nil {
			Warning("Failed to remove %s: %v", file, err)
			continue
		}
		removed++
		Info("  Removed: %s", file)
	}

	EmptyLine()
	if cleanDryRun {
		Success("%d temporary file(s) would be removed", len(files))
		return
	}
	Success("Removed %d temporary file(s)", removed)
}

// findLeftovers lists interrupted copies in every environment and the
// outcome log's lock file.
func findLeftovers(cfg config.Config) ([]string, error) {
	envs, err := allEnvironments(cfg)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, env := range envs {
		files = append(files, tempFiles(env, cfg.BundleFileName)...)
	}

	lock := outcome.NewSinkLock(cfg.LogSink)
	if _, err := os.Stat(lock.Path()); err == nil {
		busy, err := lock.Busy()
		switch {
		case err != nil:
			Warning("cannot probe %s: %v", lock.Path(), err)
		case busy:
			Warning("%s is held by another writer; leaving it", lock.Path())
		default:
			files = append(files, filepath.Clean(lock.Path()))
		}
	}

	return files, nil
}
