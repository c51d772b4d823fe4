package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/config"
	"github.com/princespaghetti/envcerts/internal/coordinator"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/metrics"
	"github.com/princespaghetti/envcerts/internal/outcome"
	"github.com/princespaghetti/envcerts/internal/watch"
)

// watchFlags maps watch flags to config keys.
var watchFlags = map[string]string{
	"root":         config.KeyEnvironmentsRoot,
	"source":       config.KeyTargetBundlePath,
	"wait":         config.KeyWaitSeconds,
	"log-sink":     config.KeyLogSink,
	"metrics-addr": config.KeyMetricsAddr,
	"sudo":         config.KeyUseSudo,
}

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Patch every newly created environment",
	Long: `Watch the environments root and replace the CA bundle of each environment
created under it.

A new environment usually appears before its ssl folder is populated, so the
bundle is checked immediately and, when absent, once more after the configured
wait. Every attempt ends in one line of the outcome log.

The command runs until interrupted and writes nothing to stdout; diagnostics
go to stderr.

Examples:
  envcerts watch
  envcerts watch --root ~/miniconda3/envs --wait 90
  envcerts watch --metrics-addr 127.0.0.1:9310`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("root", "", "environments root to watch")
	watchCmd.Flags().String("source", "", "trusted CA bundle copied into environments")
	watchCmd.Flags().Int("wait", 60, "seconds before the deferred check")
	watchCmd.Flags().String("log-sink", "", "append-only outcome log")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().Bool("sudo", false, "retry copies through sudo on permission errors")
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, watchFlags)
	logger := newLogger(cfg)
	source := requireSource(cfg)
	logger.Info("source bundle validated", "path", source.Path, "certificates", source.CertCount)

	svc, err := newWatchService(cfg, logger)
	if err != nil {
		logger.Error("cannot start watcher", "error", err)
		if envcertserrors.IsPrecondition(err) {
			os.Exit(envcertserrors.ExitWatchError)
		}
		os.Exit(envcertserrors.ExitGeneralError)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		logger.Error("watcher stopped", "error", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}
}

// watchService wires the watch backend, coordinator, and outcome log for
// one run.
type watchService struct {
	cfg     config.Config
	logger  *slog.Logger
	source  watch.DirectoryWatcher
	sink    *outcome.FileLog
	metrics *metrics.Metrics
	coord   *coordinator.Coordinator
	watcher *watch.Watcher
}

// newWatchService subscribes to the environments root before anything else
// so an unusable root fails fast with nothing left open.
func newWatchService(cfg config.Config, logger *slog.Logger) (*watchService, error) {
	source, err := watch.NewFSNotify(cfg.EnvironmentsRoot)
	if err != nil {
		return nil, err
	}

	sink, err := outcome.OpenFileLog(cfg.LogSink)
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	m := metrics.New()
	coord := coordinator.New(newReplacer(cfg), sink, cfg.Wait(),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)

	return &watchService{
		cfg:     cfg,
		logger:  logger,
		source:  source,
		sink:    sink,
		metrics: m,
		coord:   coord,
		watcher: watch.New(source, coord, watch.WithLogger(logger), watch.WithMetrics(m)),
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight sequences
// and releases the backend and the log.
func (s *watchService) Run(ctx context.Context) error {
	s.logger.Info("watching environments",
		"root", s.cfg.EnvironmentsRoot,
		"bundle", s.cfg.BundleFileName,
		"wait_seconds", s.cfg.WaitSeconds,
		"log_sink", s.sink.Path(),
	)

	if s.cfg.MetricsAddr != "" {
		go func() {
			if err := s.metrics.Serve(ctx, s.cfg.MetricsAddr); err != nil {
				s.logger.Error("metrics server failed", "addr", s.cfg.MetricsAddr, "error", err)
			}
		}()
	}

	runErr := s.watcher.Run(ctx)
	s.coord.Wait()

	return errors.Join(runErr, s.source.Close(), s.sink.Close())
}
