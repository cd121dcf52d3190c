// Package logging builds the process logger: JSON lines to a rotating file
// under the user's state directory, or to stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogFileSizeInMb = 10
	maxLogFileCount    = 5
	maxLogFileAgeDays  = 14

	// Stderr selects stderr instead of a log file.
	Stderr = "-"
)

// Config selects the log destination and level.
type Config struct {
	Level string // debug, info, warn, error; empty means info
	File  string // empty means DefaultPath(app), "-" means stderr
	App   string
}

// DefaultPath returns ~/.local/state/<app>/<app>.log.
func DefaultPath(app string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", app, app+".log"), nil
}

// New builds a logger. The returned cleanup flushes buffered entries and
// closes the log file.
func New(cfg Config) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log-level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	if cfg.File == Stderr {
		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
		logger := zap.New(core, zap.AddCaller()).With(zap.Int("pid", os.Getpid()))
		return logger, func() { _ = logger.Sync() }, nil
	}

	path := cfg.File
	if path == "" {
		app := cfg.App
		if app == "" {
			app = "adpulse"
		}
		p, err := DefaultPath(app)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving log path: %w", err)
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogFileSizeInMb,
		MaxBackups: maxLogFileCount,
		MaxAge:     maxLogFileAgeDays,
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(rotator), level)
	logger := zap.New(core, zap.AddCaller()).With(zap.Int("pid", os.Getpid()))
	return logger, func() {
		_ = logger.Sync()
		_ = rotator.Close()
	}, nil
}
