package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// logger holds the library-wide structured logger. The default handler
// discards everything, so the library is silent until a consumer installs
// a real logger via SetLogger.
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used for the library's diagnostics stream.
// Passing nil restores the silent default.
//
// Parameters:
//   - l: the slog.Logger to receive diagnostics, or nil to silence output
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(l)
}

// Logger returns the currently installed logger. Safe to call from any
// goroutine.
//
// Returns:
//   - *slog.Logger: the active logger (never nil)
func Logger() *slog.Logger {
	return logger.Load()
}

// nopHandler is a slog.Handler that drops every record.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
