package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/princespaghetti/envcerts/internal/bundle"
	"github.com/princespaghetti/envcerts/internal/config"
	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/envfs"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/watch"
)

var (
	doctorVerbose bool
	doctorJSON    bool
)

// doctorCmd represents the doctor command.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the watcher's prerequisites and environment drift",
	Long: `Run diagnostics that explain why environments might not be patched.

Checks performed:
  - Source bundle is readable and holds valid, unexpired certificates
  - Environments root exists and is a directory
  - The root can be watched for new environments
  - Existing environments carry the source bundle and no interrupted copies
  - The outcome log is writable
  - sudo is available when privileged copies are enabled

Use --verbose for per-environment details.
Use --json for machine-readable output.

Examples:
  envcerts doctor
  envcerts doctor --verbose
  envcerts doctor --json`,
	Args: cobra.NoArgs,
	Run:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "Show detailed diagnostic information")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output in JSON format")
}

// Check statuses, in increasing severity.
const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// DoctorOutput represents the complete diagnostic output.
type DoctorOutput struct {
	Checks      []CheckResult `json:"checks"`
	Summary     Summary       `json:"summary"`
	OverallPass bool          `json:"overall_pass"`
}

// Summary contains counts of check results.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failures int `json:"failures"`
}

func runDoctor(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd, nil)
	output := runChecks(cfg)

	if doctorJSON {
		if err := JSON(output); err != nil {
			Error("Failed to encode JSON: %v", err)
			os.Exit(envcertserrors.ExitGeneralError)
		}
	} else {
		printDoctorOutput(output)
	}

	if !output.OverallPass {
		os.Exit(envcertserrors.ExitGeneralError)
	}
}

// runChecks runs every diagnostic against cfg.
func runChecks(cfg config.Config) DoctorOutput {
	results := []CheckResult{
		checkSourceBundle(cfg),
		checkEnvironmentsRoot(cfg),
		checkWatchBackend(cfg),
		checkEnvironmentBundles(cfg),
		checkOutcomeLog(cfg),
		checkPrivilegedCopy(cfg),
	}

	summary := Summary{Total: len(results)}
	overallPass := true
	for _, result := range results {
		switch result.Status {
		case statusPass:
			summary.Passed++
		case statusWarn:
			summary.Warnings++
		case statusFail:
			summary.Failures++
			overallPass = false
		}
	}

	return DoctorOutput{
		Checks:      results,
		Summary:     summary,
		OverallPass: overallPass,
	}
}

func printDoctorOutput(output DoctorOutput) {
	Header("envcerts Diagnostics")

	for _, check := range output.Checks {
		Info("%s %s", StatusIcon(check.Status), check.Name)

		if (doctorVerbose || check.Status != statusPass) && len(check.Issues) > 0 {
			for _, issue := range check.Issues {
				Info("  - %s", issue)
			}
		}

		if check.Status != statusPass {
			for _, suggestion := range check.Suggestions {
				Info("  → %s", suggestion)
			}
		}

		EmptyLine()
	}

	Subheader("Summary")
	Field("Total checks", fmt.Sprintf("%d", output.Summary.Total))
	Field("Passed", fmt.Sprintf("%d", output.Summary.Passed))
	if output.Summary.Warnings > 0 {
		Field("Warnings", fmt.Sprintf("%d", output.Summary.Warnings))
	}
	if output.Summary.Failures > 0 {
		Field("Failures", fmt.Sprintf("%d", output.Summary.Failures))
	}
	EmptyLine()

	switch {
	case !output.OverallPass:
		Info("Status: FAIL")
	case output.Summary.Warnings > 0:
		Info("Status: PASS (with warnings)")
	default:
		Info("Status: PASS")
	}
}

func newCheck(name string) CheckResult {
	return CheckResult{Name: name, Status: statusPass}
}

// note records detail without changing the status.
func (r *CheckResult) note(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

// warn records an issue and lowers a passing check to a warning.
func (r *CheckResult) warn(suggestion, format string, args ...any) {
	if r.Status == statusPass {
		r.Status = statusWarn
	}
	r.record(suggestion, format, args...)
}

// fail records an issue and marks the check failed.
func (r *CheckResult) fail(suggestion, format string, args ...any) {
	r.Status = statusFail
	r.record(suggestion, format, args...)
}

func (r *CheckResult) record(suggestion, format string, args ...any) {
	r.note(format, args...)
	if suggestion != "" && !slices.Contains(r.Suggestions, suggestion) {
		r.Suggestions = append(r.Suggestions, suggestion)
	}
}

// checkSourceBundle verifies the trusted bundle can be copied into environments.
func checkSourceBundle(cfg config.Config) CheckResult {
	result := newCheck("Source bundle")

	info, err := bundle.ValidateSource(cfg.TargetBundlePath)
	if err != nil {
		result.fail("Point target_bundle_path at a PEM bundle holding your CA certificates", "%v", err)
		return result
	}

	result.note("%s: %d certificates, %s", info.Path, info.CertCount, formatBytes(info.SizeBytes))
	if info.Expired > 0 {
		result.warn("Refresh the source bundle with 'envcerts fetch'", "%d certificate(s) have expired", info.Expired)
	}
	return result
}

// checkEnvironmentsRoot verifies the watched directory exists.
func checkEnvironmentsRoot(cfg config.Config) CheckResult {
	const hint = "Set environments_root to the folder that holds your conda environments"
	result := newCheck("Environments root")

	info, err := os.Stat(cfg.EnvironmentsRoot)
	switch {
	case os.IsNotExist(err):
		result.fail(hint, "Directory does not exist: %s", cfg.EnvironmentsRoot)
	case err != nil:
		result.fail(hint, "Cannot access directory: %s (%v)", cfg.EnvironmentsRoot, err)
	case !info.IsDir():
		result.fail(hint, "Path exists but is not a directory: %s", cfg.EnvironmentsRoot)
	default:
		result.note("%s", cfg.EnvironmentsRoot)
	}
	return result
}

// checkWatchBackend subscribes to the root once and releases it.
func checkWatchBackend(cfg config.Config) CheckResult {
	result := newCheck("Watch backend")

	w, err := watch.NewFSNotify(cfg.EnvironmentsRoot)
	if err != nil {
		result.fail("Raise fs.inotify.max_user_watches or fix the environments root", "%v", err)
		return result
	}
	_ = w.Close()
	return result
}

// checkEnvironmentBundles compares every existing environment's bundle with
// the source.
func checkEnvironmentBundles(cfg config.Config) CheckResult {
	result := newCheck("Environment bundles")

	source, err := os.ReadFile(cfg.TargetBundlePath)
	if err != nil {
		result.warn("", "Skipped: source bundle unreadable")
		return result
	}

	envs, err := allEnvironments(cfg)
	if err != nil {
		result.warn("", "Cannot list environments: %v", err)
		return result
	}

	var current, stale, absent, leftovers int
	for _, env := range envs {
		path := env.BundlePath(cfg.BundleFileName)
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			absent++
			continue
		case err != nil:
			result.fail("", "%s: cannot read %s (%v)", env.Name, path, err)
			continue
		}

		if bytes.Equal(data, source) {
			current++
		} else {
			stale++
			if doctorVerbose {
				result.note("%s: bundle differs from source", env.Name)
			}
		}
		leftovers += len(tempFiles(env, cfg.BundleFileName))
	}

	result.Issues = append([]string{fmt.Sprintf("%d environment(s): %d current, %d stale, %d without a bundle",
		len(envs), current, stale, absent)}, result.Issues...)

	if stale > 0 {
		result.warn("Run 'envcerts replace' to update existing environments", "%d environment(s) carry a stale bundle", stale)
	}
	if leftovers > 0 {
		result.warn("Run 'envcerts clean' to remove them", "%d interrupted copy file(s) found", leftovers)
	}
	return result
}

// checkOutcomeLog verifies the outcome log can be appended to.
func checkOutcomeLog(cfg config.Config) CheckResult {
	result := newCheck("Outcome log")

	f, err := os.OpenFile(cfg.LogSink, os.O_WRONLY|os.O_APPEND, 0)
	switch {
	case err == nil:
		_ = f.Close()
		result.note("%s", cfg.LogSink)
	case os.IsNotExist(err):
		result.note("%s will be created on first outcome", cfg.LogSink)
		if info, err := os.Stat(filepath.Dir(cfg.LogSink)); err == nil && !info.IsDir() {
			result.fail("", "Parent is not a directory: %s", filepath.Dir(cfg.LogSink))
		}
	default:
		result.fail("Fix permissions or set log_sink to a writable path", "Cannot append to %s: %v", cfg.LogSink, err)
	}
	return result
}

// checkPrivilegedCopy verifies sudo is on PATH when use_sudo is set.
func checkPrivilegedCopy(cfg config.Config) CheckResult {
	result := newCheck("Privileged copy")

	if !cfg.UseSudo {
		result.note("Disabled")
		return result
	}
	if _, err := exec.LookPath("sudo"); err != nil {
		result.fail("Install sudo or set use_sudo to false", "use_sudo is set but sudo is not on PATH")
	}
	return result
}

// tempFiles lists leftover temp copies in env's ssl folder.
func tempFiles(env environment.Environment, bundleFileName string) []string {
	var found []string
	for _, target := range []string{env.BundlePath(bundleFileName), env.BackupPath(bundleFileName)} {
		path := target + envfs.TempSuffix
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	return found
}
