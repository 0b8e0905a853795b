package portability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards all records. Enabled returns
// false so disabled logging skips message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	if os.Getenv("VKP_DEBUG") == "1" {
		loggerPtr.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
		return
	}
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by the layer and its backends. By
// default no output is produced; the target API has no logging surface of
// its own, so this is strictly a host-side diagnostic channel. Setting
// VKP_DEBUG=1 in the environment enables a stderr text handler at Debug
// level without any code changes.
//
// Levels: Debug for per-call diagnostics, Info for backend and device
// lifecycle events, Warn for unmapped backend errors and fallbacks.
//
// Pass nil to restore the silent default. Safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
