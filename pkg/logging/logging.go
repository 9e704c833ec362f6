// Package logging provides xlrecover's default structured logger. It
// holds no package-level mutable state — every component that logs takes
// a *slog.Logger explicitly (falling back to Default() when the caller
// doesn't supply one), so a process embedding xlrecover alongside other
// libraries never fights over a shared global.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a tint-backed logger writing to os.Stderr at the given
// level, with source file:line annotations enabled.
func New(level slog.Level) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	})
	return slog.New(handler)
}

// Default returns the logger xlrecover components use when a caller
// leaves Options.Logger nil: Info level, no debug noise.
func Default() *slog.Logger {
	return New(slog.LevelInfo)
}
