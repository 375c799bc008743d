// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Reporting ReportingConfig `mapstructure:"reporting" yaml:"reporting"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggerConfig    `mapstructure:"logging" yaml:"logging"`
}

// AnalysisConfig controls what gets scanned and how the flow engine runs.
type AnalysisConfig struct {
	// Language selects the frontend. Only "java" is supported today.
	Language  string `mapstructure:"language" yaml:"language"`
	RulesPath string `mapstructure:"rules_path" yaml:"rules_path"`
	// ModelPaths lists extra method-flow model CSVs loaded on top of the
	// built-in set.
	ModelPaths []string `mapstructure:"model_paths" yaml:"model_paths"`
	Include    []string `mapstructure:"include" yaml:"include"`
	Exclude    []string `mapstructure:"exclude" yaml:"exclude"`
	// GitRef makes the scan read sources out of a git revision instead of
	// the working tree.
	GitRef string `mapstructure:"git_ref" yaml:"git_ref"`
	// Concurrency caps parallel file analysis. Zero means one worker per CPU.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// FailOn makes the scan exit non-zero when a finding of at least this
	// severity exists. Empty disables the gate.
	FailOn string `mapstructure:"fail_on" yaml:"fail_on"`
}

// ReportingConfig selects the output format and destination.
type ReportingConfig struct {
	Format string       `mapstructure:"format" yaml:"format"`
	Output string       `mapstructure:"output" yaml:"output"`
	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
}

// GitHubConfig defines the configuration for SARIF uploads to code scanning.
type GitHubConfig struct {
	Upload    bool   `mapstructure:"upload" yaml:"upload"`
	Token     string `mapstructure:"token" yaml:"-"`
	Owner     string `mapstructure:"owner" yaml:"owner"`
	Repo      string `mapstructure:"repo" yaml:"repo"`
	CommitSHA string `mapstructure:"commit_sha" yaml:"commit_sha"`
	Ref       string `mapstructure:"ref" yaml:"ref"`
}

// StoreConfig holds the findings database connection details.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// validFormats are the reporter formats the CLI can emit.
var validFormats = map[string]bool{
	"sarif":      true,
	"json":       true,
	"checkstyle": true,
	"annotate":   true,
}

// validFailOn are the accepted severity gate values.
var validFailOn = map[string]bool{
	"":         true,
	"info":     true,
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Analysis --
	v.SetDefault("analysis.language", "java")
	v.SetDefault("analysis.rules_path", "")
	v.SetDefault("analysis.model_paths", []string{})
	v.SetDefault("analysis.include", []string{})
	v.SetDefault("analysis.exclude", []string{})
	v.SetDefault("analysis.git_ref", "")
	v.SetDefault("analysis.concurrency", 0)
	v.SetDefault("analysis.fail_on", "")

	// -- Reporting --
	v.SetDefault("reporting.format", "sarif")
	v.SetDefault("reporting.output", "")
	v.SetDefault("reporting.github.upload", false)
	v.SetDefault("reporting.github.ref", "")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "")

	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.service_name", "lancet")
	v.SetDefault("logging.log_file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("reporting.github.token", "LANCET_GITHUB_TOKEN")
	v.BindEnv("store.dsn", "LANCET_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the token if Unmarshal didn't pick it up
	if cfg.Reporting.GitHub.Upload && cfg.Reporting.GitHub.Token == "" {
		cfg.Reporting.GitHub.Token = os.Getenv("LANCET_GITHUB_TOKEN")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding config paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user-supplied file paths.
func (c *Config) expandPaths() error {
	fields := []*string{
		&c.Analysis.RulesPath,
		&c.Reporting.Output,
		&c.Logging.LogFile,
	}
	for _, f := range fields {
		if *f == "" {
			continue
		}
		expanded, err := homedir.Expand(*f)
		if err != nil {
			return fmt.Errorf("cannot expand path %q: %w", *f, err)
		}
		*f = expanded
	}
	for i, p := range c.Analysis.ModelPaths {
		if p == "" {
			continue
		}
		expanded, err := homedir.Expand(p)
		if err != nil {
			return fmt.Errorf("cannot expand path %q: %w", p, err)
		}
		c.Analysis.ModelPaths[i] = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis configuration invalid: %w", err)
	}
	if err := c.Reporting.Validate(); err != nil {
		return fmt.Errorf("reporting configuration invalid: %w", err)
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.enabled is true")
	}
	return nil
}

// Validate checks the analysis settings.
func (a *AnalysisConfig) Validate() error {
	if !strings.EqualFold(a.Language, "java") {
		return fmt.Errorf("unsupported analysis.language %q (only java is supported)", a.Language)
	}
	if a.Concurrency < 0 {
		return fmt.Errorf("analysis.concurrency must not be negative")
	}
	if !validFailOn[strings.ToLower(a.FailOn)] {
		return fmt.Errorf("analysis.fail_on must be one of info, low, medium, high, critical")
	}
	return nil
}

// Validate checks the reporting settings.
func (r *ReportingConfig) Validate() error {
	if !validFormats[r.Format] {
		return fmt.Errorf("unsupported reporting.format %q", r.Format)
	}
	return r.GitHub.Validate()
}

// Validate checks the GitHub upload settings.
func (g *GitHubConfig) Validate() error {
	if !g.Upload {
		return nil
	}
	if g.Owner == "" || g.Repo == "" || g.CommitSHA == "" || g.Ref == "" {
		return fmt.Errorf("github.owner, github.repo, github.commit_sha, and github.ref are required for uploads")
	}
	if g.Token == "" {
		return fmt.Errorf("GitHub token is required but not found. Ensure LANCET_GITHUB_TOKEN is set")
	}
	return nil
}
