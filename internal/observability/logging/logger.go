// Package logging builds the process-wide structured logger. Everything logs
// JSON to stdout; aggregation happens outside the process.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns the JSON logger tagged with the service name. Level
// strings follow slog ("debug", "info", "warn", "error", case-insensitive);
// anything unparseable falls back to info so a typo in LOG_LEVEL never
// silences the service. Debug level also records source positions.
func NewJSONLogger(service, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(handler).With("service", service)
}
