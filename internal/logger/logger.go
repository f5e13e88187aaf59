// Package logger builds the structured logger shared by every gatekeeper component.
// It wraps the standard library "log/slog" package to ensure consistent formatting
// (JSON in production, text in development) and carries a request-scoped logger
// through context.Context.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/gatekeeper/internal/config"
)

// New creates a *slog.Logger writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a *slog.Logger writing to w. Tests use it to capture output.
// Every line carries the service identity (name, version, env).
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line helps locally but costs a runtime.Caller per record.
		AddSource: cfg.Environment != config.EnvironmentProduction,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		// JSON is the default for anything but an explicit "text".
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// ParseLevel converts a level name (case-insensitive) to slog.Level. Defaults to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
