// Package logging is a thin slog wrapper shared by the CLI and the pipeline.
//
// Log output goes to stderr (or a supplied writer) and never into artifacts.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" (any case) to a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

type Config struct {
	Level Level
	// JSON selects the JSON handler instead of the text handler.
	JSON  bool
	Quiet bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

type Logger struct {
	slog *slog.Logger
}

func New(config Config) *Logger {
	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	if config.Quiet {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{slog: slog.New(handler).With(slog.String("component", "specc"))}
}

// Discard returns a logger that drops everything. Used by tests and library callers.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) Debug(msg string, args ...any) { l.get().Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.get().Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.get().Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.get().Error(msg, args...) }

func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.get().With(args...)}
}

func (l *Logger) Slog() *slog.Logger { return l.get() }

// A nil *Logger is usable and silent.
func (l *Logger) get() *slog.Logger {
	if l == nil || l.slog == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.slog
}
