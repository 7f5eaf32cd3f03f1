// internal/config/config.go
//
// This package handles configuration and the .storyline directory structure.
// A project keeps its settings in .storyline/config.yaml; a .env file next to
// it and STORYLINE_* environment variables override individual values.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

const (
	// StorylineDir is the name of the directory we create in each project
	StorylineDir = ".storyline"

	defaultPlansRoot   = "plans"
	defaultLogLevel    = "info"
	defaultMaxParallel = 4

	EnvPlansRoot              = "STORYLINE_PLANS_ROOT"
	EnvPreferVerificationYAML = "STORYLINE_PREFER_VERIFICATION_YAML"
	EnvLogLevel               = "STORYLINE_LOG_LEVEL"
)

const defaultProjectConfigYAML = `# storyline project configuration
version: 1

# Root of the artifact tree, relative to the project directory.
plans_root: plans

# Probe verification.yaml before the historical proof.md.
prefer_verification_yaml: true

runner:
  timeout: 30s
  max_attempts: 3
  backoff:
    base: 200ms
    max: 5s
  circuit_breaker:
    # A negative value disables the breaker; zero falls back to 5.
    failure_threshold: 5
    recovery_window: 30s

engine:
  max_parallel: 4

logging:
  level: info
`

// BackoffConfig describes exponential backoff between attempts.
type BackoffConfig struct {
	Base time.Duration `yaml:"base"`
	Max  time.Duration `yaml:"max"`
}

// BreakerConfig mirrors runner.BreakerPolicy.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryWindow   time.Duration `yaml:"recovery_window"`
}

// RunnerConfig captures the default node policy.
type RunnerConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        BackoffConfig `yaml:"backoff"`
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// EngineConfig bounds node graph execution.
type EngineConfig struct {
	MaxParallel int `yaml:"max_parallel"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .storyline/config.yaml.
type ProjectConfig struct {
	Version                int           `yaml:"version"`
	PlansRoot              string        `yaml:"plans_root"`
	PreferVerificationYAML *bool         `yaml:"prefer_verification_yaml,omitempty"`
	Runner                 RunnerConfig  `yaml:"runner"`
	Engine                 EngineConfig  `yaml:"engine"`
	Logging                LoggingConfig `yaml:"logging"`
}

// Config holds the runtime configuration for storyline.
type Config struct {
	// ProjectDir is the directory storyline was started from
	ProjectDir string

	// StorylineProjectDir is ProjectDir/.storyline
	StorylineProjectDir string

	Project ProjectConfig
}

// InitDir creates the .storyline directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .storyline/
// ├── config.yaml
// └── logs/         <- Rotated storyline.log files
func InitDir(projectDir string) error {
	dir := filepath.Join(projectDir, StorylineDir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("config: ensure storyline dir: %w", err)
	}
	return ensureProjectConfig(filepath.Join(dir, "config.yaml"))
}

// NewConfig loads project settings. Precedence, highest first: process
// environment, the project's .env file, .storyline/config.yaml, defaults.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir:          abs,
		StorylineProjectDir: filepath.Join(abs, StorylineDir),
		Project:             defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	env, err := readDotEnv(filepath.Join(abs, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Project.applyEnv(env); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StorylineProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StorylineProjectDir, "config.yaml")
}

// PlansRoot returns the absolute artifact root.
func (c *Config) PlansRoot() string {
	return resolvePath(c.ProjectDir, c.Project.PlansRoot)
}

// PreferVerificationYAML reports the configured verification probe order.
func (c *Config) PreferVerificationYAML() bool {
	if c.Project.PreferVerificationYAML == nil {
		return true
	}
	return *c.Project.PreferVerificationYAML
}

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// MaxParallel returns the engine concurrency bound.
func (c *Config) MaxParallel() int {
	return c.Project.Engine.MaxParallel
}

// Resolver builds the artifact resolver described by the config.
func (c *Config) Resolver() (*artifact.Resolver, error) {
	return artifact.NewResolver(c.PlansRoot(), artifact.PreferVerificationYAML(c.PreferVerificationYAML()))
}

// RunnerPolicy builds the default node policy described by the config.
func (c *Config) RunnerPolicy() runner.Policy {
	rc := c.Project.Runner
	return runner.Policy{
		Timeout:     rc.Timeout,
		MaxAttempts: rc.MaxAttempts,
		Backoff:     runner.ExponentialBackoff(rc.Backoff.Base, rc.Backoff.Max),
		CircuitBreaker: runner.BreakerPolicy{
			FailureThreshold: rc.CircuitBreaker.FailureThreshold,
			RecoveryWindow:   rc.CircuitBreaker.RecoveryWindow,
		},
	}.WithDefaults()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	prefer := true
	defaults := runner.DefaultPolicy()
	return ProjectConfig{
		Version:                1,
		PlansRoot:              defaultPlansRoot,
		PreferVerificationYAML: &prefer,
		Runner: RunnerConfig{
			Timeout:     defaults.Timeout,
			MaxAttempts: defaults.MaxAttempts,
			Backoff:     BackoffConfig{Base: 200 * time.Millisecond, Max: 5 * time.Second},
			CircuitBreaker: BreakerConfig{
				FailureThreshold: defaults.CircuitBreaker.FailureThreshold,
				RecoveryWindow:   defaults.CircuitBreaker.RecoveryWindow,
			},
		},
		Engine:  EngineConfig{MaxParallel: defaultMaxParallel},
		Logging: LoggingConfig{Level: defaultLogLevel},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.PlansRoot = strings.TrimSpace(pc.PlansRoot)
	if pc.PlansRoot == "" {
		pc.PlansRoot = defaultPlansRoot
	}
	if pc.Engine.MaxParallel == 0 {
		pc.Engine.MaxParallel = defaultMaxParallel
	}
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
}

// applyEnv overlays STORYLINE_* values. Process environment wins over the
// .env file.
func (pc *ProjectConfig) applyEnv(dotenv map[string]string) error {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v), true
		}
		v, ok := dotenv[key]
		return strings.TrimSpace(v), ok
	}
	if v, ok := lookup(EnvPlansRoot); ok && v != "" {
		pc.PlansRoot = v
	}
	if v, ok := lookup(EnvPreferVerificationYAML); ok && v != "" {
		prefer, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPreferVerificationYAML, err)
		}
		pc.PreferVerificationYAML = &prefer
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		pc.Logging.Level = strings.ToLower(v)
	}
	return nil
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if strings.TrimSpace(pc.PlansRoot) == "" {
		return fmt.Errorf("plans_root is required")
	}
	rc := pc.Runner
	if rc.Timeout < 0 {
		return fmt.Errorf("runner.timeout must not be negative")
	}
	if rc.MaxAttempts < 0 {
		return fmt.Errorf("runner.max_attempts must not be negative")
	}
	if rc.Backoff.Base < 0 || rc.Backoff.Max < 0 {
		return fmt.Errorf("runner.backoff durations must not be negative")
	}
	if rc.Backoff.Max > 0 && rc.Backoff.Max < rc.Backoff.Base {
		return fmt.Errorf("runner.backoff.max must be >= runner.backoff.base")
	}
	if rc.CircuitBreaker.RecoveryWindow < 0 {
		return fmt.Errorf("runner.circuit_breaker.recovery_window must not be negative")
	}
	if pc.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine.max_parallel must be >= 1")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return env, nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
