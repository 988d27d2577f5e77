// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.Default())
}

// Logger returns the package logger. It defaults to slog.Default.
func Logger() *slog.Logger {
	return current.Load()
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	current.Store(l)
}

// Logf logs a printf-style message at info level on the package logger.
func Logf(format string, v ...any) {
	Logger().Info(fmt.Sprintf(format, v...))
}

// NewLogger builds a logger writing to w. level is one of debug, info, warn
// or error; format is "json" or "text".
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
