package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component names the part of the engine a log record comes from. It is
// attached to every record as the "component" attribute.
type Component string

// Engine components.
const (
	ComponentDriver   Component = "driver"
	ComponentClock    Component = "clock"
	ComponentCommand  Component = "command"
	ComponentDMA      Component = "dma"
	ComponentTransfer Component = "transfer"
	ComponentMMIO     Component = "mmio"
	ComponentSim      Component = "sim"
)

// LogFormat selects the record encoding.
type LogFormat int

// Log formats.
const (
	LogFormatText LogFormat = iota // key=value (default)
	LogFormatJSON                  // one JSON object per record
)

var (
	// DefaultLogger receives every record emitted through LogDebug and
	// friends. Replace it with SetLogger or SetLogOutput.
	DefaultLogger *slog.Logger

	// logLevel is shared by every handler built in this package, so
	// SetLogLevel takes effect on loggers created earlier.
	logLevel = new(slog.LevelVar)

	logMutex sync.RWMutex
)

func init() {
	// Polls log at debug; stay quiet unless asked.
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(newHandler(os.Stderr, LogFormatText, nil))
}

func newHandler(w io.Writer, format LogFormat, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	if format == LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel sets the minimum level for the package loggers.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the minimum level for the package loggers.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces DefaultLogger. Its handler decides its own level.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat points DefaultLogger at os.Stderr in format.
func SetLogFormat(format LogFormat) {
	SetLogOutput(os.Stderr, format)
}

// SetLogOutput points DefaultLogger at w in format, filtered by the
// package level.
func SetLogOutput(w io.Writer, format LogFormat) {
	SetLogger(slog.New(newHandler(w, format, nil)))
}

// Enabled reports whether a record at level would be emitted. Hot poll
// loops use it to skip building log arguments.
func Enabled(level slog.Level) bool {
	return logLevel.Level() <= level
}

// NewLogger returns a text logger on w. A nil opts follows the package
// level.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatText, opts))
}

// NewJSONLogger returns a JSON logger on w. A nil opts follows the package
// level.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatJSON, opts))
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

func emit(level slog.Level, component Component, msg string, args []any) {
	l := logger()
	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs msg at debug level for component.
func LogDebug(component Component, msg string, args ...any) {
	emit(slog.LevelDebug, component, msg, args)
}

// LogInfo logs msg at info level for component.
func LogInfo(component Component, msg string, args ...any) {
	emit(slog.LevelInfo, component, msg, args)
}

// LogWarn logs msg at warn level for component.
func LogWarn(component Component, msg string, args ...any) {
	emit(slog.LevelWarn, component, msg, args)
}

// LogError logs msg at error level for component.
func LogError(component Component, msg string, args ...any) {
	emit(slog.LevelError, component, msg, args)
}
