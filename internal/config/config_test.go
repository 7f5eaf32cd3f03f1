package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, projectDir, body string) {
	t.Helper()
	dir := filepath.Join(projectDir, StorylineDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(strings.TrimSpace(body)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvPlansRoot, EnvPreferVerificationYAML, EnvLogLevel} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	clearEnv(t)
	projectDir := t.TempDir()
	cfg, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", cfg.Project.Version)
	}
	if cfg.PlansRoot() != filepath.Join(cfg.ProjectDir, "plans") {
		t.Fatalf("unexpected plans root %s", cfg.PlansRoot())
	}
	if !cfg.PreferVerificationYAML() {
		t.Fatalf("verification.yaml should be preferred by default")
	}
	if cfg.LogLevel() != "info" {
		t.Fatalf("expected info level, got %s", cfg.LogLevel())
	}
	policy := cfg.RunnerPolicy()
	if policy.Timeout != 30*time.Second || policy.MaxAttempts != 3 {
		t.Fatalf("unexpected default policy: %+v", policy)
	}
	if policy.Backoff(1) != 200*time.Millisecond || policy.Backoff(10) != 5*time.Second {
		t.Fatalf("unexpected backoff: %v %v", policy.Backoff(1), policy.Backoff(10))
	}
}

func TestNewConfigParsesYaml(t *testing.T) {
	clearEnv(t)
	projectDir := t.TempDir()
	writeConfig(t, projectDir, `
version: 1
plans_root: docs/plans
prefer_verification_yaml: false
runner:
  timeout: 2s
  max_attempts: 5
  backoff:
    base: 10ms
    max: 40ms
  circuit_breaker:
    failure_threshold: -1
    recovery_window: 1m
engine:
  max_parallel: 2
logging:
  level: DEBUG
`)
	cfg, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.PlansRoot() != filepath.Join(cfg.ProjectDir, "docs", "plans") {
		t.Fatalf("expected plans root to be resolved, got %s", cfg.PlansRoot())
	}
	if cfg.PreferVerificationYAML() {
		t.Fatalf("expected proof.md to be preferred")
	}
	if cfg.LogLevel() != "debug" {
		t.Fatalf("expected level to be normalized, got %s", cfg.LogLevel())
	}
	if cfg.MaxParallel() != 2 {
		t.Fatalf("expected max parallel 2, got %d", cfg.MaxParallel())
	}
	policy := cfg.RunnerPolicy()
	if policy.Timeout != 2*time.Second || policy.MaxAttempts != 5 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if policy.CircuitBreaker.FailureThreshold != -1 || policy.CircuitBreaker.RecoveryWindow != time.Minute {
		t.Fatalf("unexpected breaker policy: %+v", policy.CircuitBreaker)
	}
	if policy.Backoff(3) != 40*time.Millisecond {
		t.Fatalf("expected capped backoff, got %v", policy.Backoff(3))
	}
	r, err := cfg.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	c := r.PrimaryAndFallback("wish", "uat", "WISH-1")
	if !strings.HasSuffix(c.Primary, "proof.md") {
		t.Fatalf("resolver should honor preference, got %+v", c)
	}
}

func TestZeroFailureThresholdUsesDefault(t *testing.T) {
	clearEnv(t)
	projectDir := t.TempDir()
	writeConfig(t, projectDir, `
runner:
  circuit_breaker:
    failure_threshold: 0
`)
	cfg, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if got := cfg.RunnerPolicy().CircuitBreaker.FailureThreshold; got != 5 {
		t.Fatalf("zero threshold should fall back to the default 5, got %d", got)
	}
}

func TestNewConfigValidation(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"negative timeout":  "runner:\n  timeout: -1s\n",
		"backoff inversion": "runner:\n  backoff:\n    base: 2s\n    max: 1s\n",
		"unknown level":     "logging:\n  level: chatty\n",
		"bad yaml":          "runner: [\n",
		"bad duration":      "runner:\n  timeout: soon\n",
	}
	for name, body := range cases {
		projectDir := t.TempDir()
		writeConfig(t, projectDir, body)
		if _, err := NewConfig(projectDir); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	projectDir := t.TempDir()
	writeConfig(t, projectDir, "plans_root: from-file\n")
	dotenv := EnvPlansRoot + "=from-dotenv\n" + EnvLogLevel + "=warn\n"
	if err := os.WriteFile(filepath.Join(projectDir, ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if filepath.Base(cfg.PlansRoot()) != "from-dotenv" {
		t.Fatalf(".env should override the file, got %s", cfg.PlansRoot())
	}
	if cfg.LogLevel() != "warn" {
		t.Fatalf("expected warn from .env, got %s", cfg.LogLevel())
	}

	t.Setenv(EnvPlansRoot, "/abs/plans")
	t.Setenv(EnvPreferVerificationYAML, "false")
	cfg, err = NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.PlansRoot() != filepath.Clean("/abs/plans") {
		t.Fatalf("process env should win, got %s", cfg.PlansRoot())
	}
	if cfg.PreferVerificationYAML() {
		t.Fatalf("expected preference override")
	}

	t.Setenv(EnvPreferVerificationYAML, "sometimes")
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected invalid boolean to fail")
	}
}

func TestInitDirWritesDefaultConfig(t *testing.T) {
	clearEnv(t)
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(projectDir, StorylineDir, "logs")); err != nil {
		t.Fatalf("expected logs dir: %v", err)
	}
	cfg, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("default config must load: %v", err)
	}
	if cfg.Project.Runner.CircuitBreaker.FailureThreshold != 5 {
		t.Fatalf("unexpected threshold %d", cfg.Project.Runner.CircuitBreaker.FailureThreshold)
	}

	custom := "plans_root: elsewhere\n"
	if err := os.WriteFile(cfg.ProjectConfigPath(), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	data, err := os.ReadFile(cfg.ProjectConfigPath())
	if err != nil || string(data) != custom {
		t.Fatalf("InitDir must not overwrite an existing config: %q %v", data, err)
	}
}
