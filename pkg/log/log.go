// Package log configures the process-wide slog logger for pixora binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text handler on the default logger. Unknown level
// names fall back to info.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule tags a logger with its owning module. Packages that log
// derive their logger through this so records stay filterable per module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
