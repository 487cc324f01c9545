// Package log provides the shared structured logging surface for chatqueue
// components. It is a thin wrapper over zap; components receive a *Logger at
// construction time and never reach for a process-wide default.
package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger. The zap field API is exposed directly so call
// sites use zap.String/zap.Error etc. without an extra indirection.
type Logger struct {
	*zap.Logger
}

// Options controls logger construction.
type Options struct {
	// Level is one of debug|info|warn|error. Empty means info.
	Level string
	// Format is "json" or "text". Empty means json.
	Format string
}

// New builds a production logger with the given options.
func New(opts Options) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	if strings.EqualFold(opts.Format, "text") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zl, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}
	return &Logger{zl}, nil
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger { return &Logger{zap.NewNop()} }

// Named returns a logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{l.Logger.Named(component)}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
