package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/bundle"
	"github.com/princespaghetti/envcerts/internal/config"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

var replaceJSON bool

var replaceFlags = map[string]string{
	"root":            config.KeyEnvironmentsRoot,
	"base":            config.KeyBaseEnvironment,
	"source":          config.KeyTargetBundlePath,
	"log-sink":        config.KeyLogSink,
	"sudo":            config.KeyUseSudo,
	"skip-up-to-date": config.KeySkipUpToDate,
}

// replaceCmd represents the replace command.
var replaceCmd = &cobra.Command{
	Use:   "replace",
	Short: "Replace the bundle in every existing environment",
	Long: `Replace the CA bundle of the base environment and of every environment under
the environments root, once, without waiting.

Each environment's current bundle is first copied to ssl/backup_<name>.
Environments without a bundle are reported as NOT_PRESENT and left alone.
The first copy failure stops the run. Every outcome is also appended to the
outcome log.

Examples:
  envcerts replace
  envcerts replace --root /opt/conda/envs --base /opt/conda
  envcerts replace --skip-up-to-date --json`,
	Args: cobra.NoArgs,
	Run:  runReplace,
}

func init() {
	rootCmd.AddCommand(replaceCmd)
	replaceCmd.Flags().String("root", "", "environments root")
	replaceCmd.Flags().String("base", "", "base environment (empty to skip)")
	replaceCmd.Flags().String("source", "", "trusted CA bundle copied into environments")
	replaceCmd.Flags().String("log-sink", "", "append-only outcome log")
	replaceCmd.Flags().Bool("sudo", false, "retry copies through sudo on permission errors")
	replaceCmd.Flags().Bool("skip-up-to-date", false, "leave bundles that already match the source")
	replaceCmd.Flags().BoolVar(&replaceJSON, "json", false, "Output in JSON format")
}

func runReplace(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, replaceFlags)
	logger := newLogger(cfg)
	requireSource(cfg)

	sink, err := outcome.OpenFileLog(cfg.LogSink)
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
	defer sink.Close()

	outcomes, runErr := replaceAll(cmd.Context(), cfg, sink)
	for _, o := range outcomes {
		logger.Debug("bulk outcome", "env", o.Env, "kind", string(o.Kind))
	}

	if replaceJSON {
		if err := JSON(outcomes); err != nil {
			Error("Failed to encode JSON: %v", err)
			os.Exit(envcertserrors.ExitGeneralError)
		}
	} else {
		printOutcomes(outcomes)
	}

	if runErr != nil {
		Error("%v", runErr)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}

// replaceAll runs the bulk replacement and records every outcome to sink,
// including the partial set gathered before a failure.
func replaceAll(ctx context.Context, cfg config.Config, sink outcome.Sink) ([]outcome.Outcome, error) {
	bulk := bundle.NewBulkReplacer(newReplacer(cfg))
	outcomes, err := bulk.ReplaceAll(ctx, cfg.BaseEnvironment, cfg.EnvironmentsRoot)

	var recordErr error
	for _, o := range outcomes {
		if rerr := sink.Record(o); rerr != nil {
			recordErr = errors.Join(recordErr, rerr)
		}
	}

	return outcomes, errors.Join(err, recordErr)
}

func printOutcomes(outcomes []outcome.Outcome) {
	if len(outcomes) == 0 {
		Info("No environments found")
		return
	}

	table := NewTable("ENVIRONMENT", "OUTCOME", "DETAIL")
	counts := map[outcome.Kind]int{}
	for _, o := range outcomes {
		table.AddRow(o.Env, string(o.Kind), o.Message)
		counts[o.Kind]++
	}
	table.Print()
	EmptyLine()

	Success("%d replaced, %d up to date, %d without a bundle",
		counts[outcome.KindReplaced], counts[outcome.KindAlreadyUpToDate], counts[outcome.KindNotPresent])
}
