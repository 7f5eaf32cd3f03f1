// Package logging builds the zap logger storyline writes to
// .storyline/logs/storyline.log so failures can be inspected after a run.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kingrea/storyline/internal/config"
)

// FileName is the active log file inside the logs directory.
const FileName = "storyline.log"

// Options tunes rotation. Zero values fall back to the defaults below.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console mirrors entries to stderr.
	Console bool
}

// New creates a JSON file logger under projectDir at the given level.
func New(projectDir, level string, opts Options) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(projectDir, config.StorylineDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 28
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, FileName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), lvl),
	}
	if opts.Console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// FromConfig is New driven by a loaded project config.
func FromConfig(cfg *config.Config, opts Options) (*zap.Logger, error) {
	return New(cfg.ProjectDir, cfg.LogLevel(), opts)
}

// ParseLevel maps a level name to a zap level; "" means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
	}
	return lvl, nil
}
