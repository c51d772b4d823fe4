package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/config"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/fetcher"
)

var fetchTimeout time.Duration

// fetchCmd represents the fetch command.
var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Refresh the source bundle from a URL",
	Long: `Download a CA bundle and install it as the source bundle that envcerts copies
into environments.

The download must contain at least one PEM certificate. A large drop in the
certificate count compared with the current source is reported as a warning.
An identical download leaves the source untouched.

The URL defaults to source_url from the configuration.

Examples:
  envcerts fetch https://pki.example.com/ca-bundle.pem
  envcerts fetch --source ~/.envcerts/ca.pem`,
	Args: cobra.MaximumNArgs(1),
	Run:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().String("source", "", "where to install the bundle (default target_bundle_path)")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "download timeout")
}

func runFetch(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, map[string]string{"source": config.KeyTargetBundlePath})

	url := cfg.SourceURL
	if len(args) == 1 {
		url = args[0]
	}
	if url == "" {
		Error("no URL given and source_url is not configured")
		os.Exit(envcertserrors.ExitConfigError)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()

	result, err := fetchSource(ctx, fetcher.NewFetcher(nil, nil), url, cfg.TargetBundlePath)
	if err != nil {
		Error("%v", err)
		if envcertserrors.IsError(err, envcertserrors.ErrSourceBundleInvalid) {
			os.Exit(envcertserrors.ExitCertError)
		}
		os.Exit(envcertserrors.ExitGeneralError)
	}

	if result.Warning != "" {
		Warning("%s", result.Warning)
	}
	if result.Unchanged {
		Success("%s is already current (%d certificates)", cfg.TargetBundlePath, result.CertCount)
		return
	}
	Success("Installed %d certificates to %s", result.CertCount, cfg.TargetBundlePath)
	Info("Run 'envcerts replace' to update existing environments.")
}

func fetchSource(ctx context.Context, f *fetcher.Fetcher, url, dst string) (*fetcher.Result, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.Install(data, dst)
}
