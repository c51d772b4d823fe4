// Package config loads envcerts settings.
//
// Sources are layered with later ones overriding earlier ones:
// defaults, the YAML config file, ENVCERTS_* environment variables, then
// explicitly set command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// EnvPrefix is the environment variable prefix, e.g. ENVCERTS_WAIT_SECONDS.
const EnvPrefix = "ENVCERTS_"

// DefaultConfigFile is read when no --config flag is given and it exists.
const DefaultConfigFile = "~/.envcerts/config.yaml"

// Config keys.
const (
	KeyTargetBundlePath = "target_bundle_path"
	KeyBundleFileName   = "bundle_file_name"
	KeyEnvironmentsRoot = "environments_root"
	KeyBaseEnvironment  = "base_environment"
	KeyWaitSeconds      = "wait_seconds"
	KeyLogSink          = "log_sink"
	KeyUseSudo          = "use_sudo"
	KeySkipUpToDate     = "skip_up_to_date"
	KeyMetricsAddr      = "metrics_addr"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeySourceURL        = "source_url"
)

// Config is the resolved, immutable configuration.
type Config struct {
	TargetBundlePath string `koanf:"target_bundle_path" json:"target_bundle_path"`
	BundleFileName   string `koanf:"bundle_file_name" json:"bundle_file_name"`
	EnvironmentsRoot string `koanf:"environments_root" json:"environments_root"`
	BaseEnvironment  string `koanf:"base_environment" json:"base_environment"`
	WaitSeconds      int    `koanf:"wait_seconds" json:"wait_seconds"`
	LogSink          string `koanf:"log_sink" json:"log_sink"`
	UseSudo          bool   `koanf:"use_sudo" json:"use_sudo"`
	SkipUpToDate     bool   `koanf:"skip_up_to_date" json:"skip_up_to_date"`
	MetricsAddr      string `koanf:"metrics_addr" json:"metrics_addr"`
	LogLevel         string `koanf:"log_level" json:"log_level"`
	LogFormat        string `koanf:"log_format" json:"log_format"`
	SourceURL        string `koanf:"source_url" json:"source_url"`
}

// Defaults returns the built-in values.
func Defaults() map[string]any {
	return map[string]any{
		KeyTargetBundlePath: "/etc/ssl/certs/ca-certificates.crt",
		KeyBundleFileName:   "cacert.pem",
		KeyEnvironmentsRoot: "~/miniconda3/envs",
		KeyBaseEnvironment:  "~/miniconda3",
		KeyWaitSeconds:      60,
		KeyLogSink:          "~/.envcerts/outcomes.log",
		KeyUseSudo:          false,
		KeySkipUpToDate:     false,
		KeyMetricsAddr:      "",
		KeyLogLevel:         "info",
		KeyLogFormat:        "text",
		KeySourceURL:        "",
	}
}

// Wait returns the deferred check delay.
func (c Config) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// Validate checks the configuration for values the commands cannot use.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{KeyTargetBundlePath, c.TargetBundlePath},
		{KeyBundleFileName, c.BundleFileName},
		{KeyEnvironmentsRoot, c.EnvironmentsRoot},
		{KeyLogSink, c.LogSink},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid(r.key, "must not be empty")
		}
	}

	if strings.ContainsAny(c.BundleFileName, `/\`) {
		return invalid(KeyBundleFileName, fmt.Sprintf("%q must be a file name, not a path", c.BundleFileName))
	}
	if c.WaitSeconds < 0 {
		return invalid(KeyWaitSeconds, fmt.Sprintf("must not be negative, got %d", c.WaitSeconds))
	}
	if c.SourceURL != "" && !strings.HasPrefix(c.SourceURL, "https://") && !strings.HasPrefix(c.SourceURL, "http://") {
		return invalid(KeySourceURL, fmt.Sprintf("%q must be an http(s) URL", c.SourceURL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid(KeyLogLevel, fmt.Sprintf("unknown level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return invalid(KeyLogFormat, fmt.Sprintf("unknown format %q", c.LogFormat))
	}

	return nil
}

func invalid(key, reason string) error {
	return &envcertserrors.EnvcertsError{
		Op:  "validate config",
		Err: fmt.Errorf("%w: %s %s", envcertserrors.ErrInvalidConfig, key, reason),
	}
}

// Loader layers configuration sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	home      string
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfigFile sets the YAML file to read. An explicit file must exist.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvPrefix overrides EnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithHomeDir sets the directory substituted for a leading "~".
func WithHomeDir(home string) Option {
	return func(l *Loader) {
		l.home = home
	}
}

// NewLoader creates a Loader seeded with Defaults.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.home == "" {
		l.home, _ = os.UserHomeDir()
	}
	return l
}

// Load resolves the configuration. flags holds only the flags the user set
// explicitly, keyed by config key.
func (l *Loader) Load(flags map[string]any) (Config, error) {
	if err := l.LoadMap(Defaults()); err != nil {
		return Config{}, err
	}

	path := l.filePath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	path = ExpandHome(path, l.home)
	if _, err := os.Stat(path); err == nil || explicit {
		if err := l.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := l.LoadEnv(); err != nil {
		return Config{}, err
	}
	if len(flags) > 0 {
		if err := l.LoadMap(flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return Config{}, &envcertserrors.EnvcertsError{
			Op:  "unmarshal config",
			Err: fmt.Errorf("%w: %v", envcertserrors.ErrInvalidConfig, err),
		}
	}

	cfg.TargetBundlePath = ExpandHome(cfg.TargetBundlePath, l.home)
	cfg.EnvironmentsRoot = ExpandHome(cfg.EnvironmentsRoot, l.home)
	cfg.BaseEnvironment = ExpandHome(cfg.BaseEnvironment, l.home)
	cfg.LogSink = ExpandHome(cfg.LogSink, l.home)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file.
func (l *Loader) LoadFile(path string) error {
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return &envcertserrors.EnvcertsError{
			Op:   "load config file",
			Path: path,
			Err:  fmt.Errorf("%w: %v", envcertserrors.ErrInvalidConfig, err),
		}
	}
	return nil
}

// LoadEnv merges environment variables. ENVCERTS_WAIT_SECONDS sets
// wait_seconds; keys are flat so underscores are kept.
func (l *Loader) LoadEnv() error {
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap merges values from a map.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Keys returns all loaded keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

var errReadBytesNotSupported = errors.New("config: map provider does not support ReadBytes")

// mapProvider feeds defaults and flag values into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
