package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/config"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

var statusJSON bool

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the outcome log",
	Long: `Read the outcome log and show how many attempts ended in each outcome and
the latest outcome of every environment.

Examples:
  envcerts status
  envcerts status --json`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().String("log-sink", "", "outcome log to read")
}

// StatusOutput represents the structured output of the status command.
type StatusOutput struct {
	LogSink string               `json:"log_sink"`
	Total   int                  `json:"total"`
	Counts  map[outcome.Kind]int `json:"counts"`
	Latest  []outcome.Outcome    `json:"latest"`
	Since   time.Time            `json:"since,omitzero"`
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, map[string]string{"log-sink": config.KeyLogSink})

	status, err := gatherStatus(cfg.LogSink)
	if err != nil {
		Error("%v", err)
		os.Exit(envcertserrors.ExitGeneralError)
	}

	if statusJSON {
		if err := JSON(status); err != nil {
			Error("Failed to encode JSON: %v", err)
			os.Exit(envcertserrors.ExitGeneralError)
		}
		return
	}
	printStatusHuman(status)
}

// gatherStatus reads the outcome log at path. A missing log is an empty
// status, not an error.
func gatherStatus(path string) (StatusOutput, error) {
	records, err := outcome.ReadAll(path)
	if err != nil {
		return StatusOutput{}, err
	}

	status := StatusOutput{
		LogSink: path,
		Total:   len(records),
		Counts:  map[outcome.Kind]int{},
	}

	latest := map[string]outcome.Outcome{}
	for _, o := range records {
		status.Counts[o.Kind]++
		if prev, ok := latest[o.Env]; !ok || !o.Time.Before(prev.Time) {
			latest[o.Env] = o
		}
		if status.Since.IsZero() || o.Time.Before(status.Since) {
			status.Since = o.Time
		}
	}

	status.Latest = make([]outcome.Outcome, 0, len(latest))
	for _, o := range latest {
		status.Latest = append(status.Latest, o)
	}
	sort.Slice(status.Latest, func(i, j int) bool {
		return status.Latest[i].Env < status.Latest[j].Env
	})

	return status, nil
}

func printStatusHuman(status StatusOutput) {
	Header("Outcome Log Status")

	Field("Log", status.LogSink)
	Field("Records", fmt.Sprintf("%d", status.Total))
	if status.Total == 0 {
		EmptyLine()
		Info("No outcomes recorded yet. Run 'envcerts watch' or 'envcerts replace'.")
		return
	}
	Field("Since", status.Since.Local().Format("2006-01-02 15:04:05 MST"))
	EmptyLine()

	Subheader("Outcomes")
	for _, kind := range outcome.Kinds {
		if n := status.Counts[kind]; n > 0 {
			Field(string(kind), fmt.Sprintf("%d", n))
		}
	}
	EmptyLine()

	Subheader("Latest per environment")
	table := NewTable("ENVIRONMENT", "OUTCOME", "WHEN", "DETAIL")
	for _, o := range status.Latest {
		table.AddRow(o.Env, string(o.Kind), o.Time.Local().Format("2006-01-02 15:04:05"), o.Message)
	}
	table.Print()
}
