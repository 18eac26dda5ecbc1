// Package logging writes the structured debug log of a run as JSON lines.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level names accepted in configuration.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger is a JSON slog logger bound to an optional log file. Derived loggers
// share the file; only the root should be closed.
type Logger struct {
	*slog.Logger
	file *os.File
	mu   *sync.Mutex
}

// New writes to dir/debug.log, or to stderr when dir is empty.
func New(dir, level string) (*Logger, error) {
	var w io.Writer = os.Stderr
	var file *os.File
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, file = f, f
	}
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})),
		file:   file,
		mu:     &sync.Mutex{},
	}, nil
}

// NewWriter logs JSON lines to w. Used by tests and the web server.
func NewWriter(w io.Writer, level string) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})),
		mu:     &sync.Mutex{},
	}
}

// Nop discards everything.
func Nop() *Logger {
	return NewWriter(io.Discard, LevelError)
}

// ParseLevel maps a level name to slog.Level, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying extra key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(args...), file: l.file, mu: l.mu}
}

// WithRun tags entries with a run ID.
func (l *Logger) WithRun(id string) *Logger {
	return l.With("run_id", id)
}

// WithStage tags entries with a stage ID.
func (l *Logger) WithStage(stage string) *Logger {
	return l.With("stage", stage)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
