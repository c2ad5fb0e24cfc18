// Package logger holds the process-wide structured logger used by the
// allocator packages. Output is discarded until Init enables it, so the hot
// paths pay only for a level check.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// EnvVar enables debug logging to stderr at package init when set to any
// non-empty value.
const EnvVar = "HPA_LOG"

var current atomic.Pointer[slog.Logger]

func init() {
	if os.Getenv(EnvVar) != "" {
		_ = Init(Options{Enabled: true, Level: slog.LevelDebug})
		return
	}
	current.Store(discard())
}

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Writer  io.Writer  // Destination. Default: os.Stderr
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // Emit JSON lines instead of logfmt-style text
}

// Init configures logging. It is safe to call concurrently with logging.
func Init(opts Options) error {
	if !opts.Enabled {
		current.Store(discard())
		return nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == 0 {
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	current.Store(slog.New(h))
	return nil
}

// L returns the active logger.
func L() *slog.Logger { return current.Load() }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L().Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L().Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L().Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L().Error(msg, args...) }
