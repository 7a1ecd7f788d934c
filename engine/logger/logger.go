// Package logger holds the structured logger shared by every engine package.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for the engine and all its sub-packages.
// By default the engine produces no log output. Pass nil to restore the silent default.
//
// Log levels used by the engine:
//   - [slog.LevelDebug]: pipeline creation, release and restore, buffer reallocation
//   - [slog.LevelInfo]: device and backend selection, settings changes
//   - [slog.LevelWarn]: skipped frames and recoverable resource failures
//   - [slog.LevelError]: internal bookkeeping errors
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current engine logger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the active logger, never nil
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// Internal logs a bookkeeping invariant violation at error level with a stable message prefix
// so these can be filtered out of regular errors.
//
// Parameters:
//   - msg: description of the violated invariant
//   - args: slog attributes describing the context
func Internal(msg string, args ...any) {
	Logger().Error("internal error: "+msg, args...)
}
