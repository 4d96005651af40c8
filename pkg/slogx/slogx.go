package slogx

import (
	"log/slog"
	"os"
	"strings"
)

// Config selects the process-wide logger behaviour. Zero values fall back
// to JSON output at info level.
type Config struct {
	Service string
	Version string
	Env     string // "dev" adds source locations and defaults to text output
	Level   string // "debug", "info", "warn", "error"
	Format  string // "json" or "text"; empty picks by Env
}

// New builds the service logger and installs it as the slog default, so
// FromContext has a sensible fallback outside request scope.
func New(cfg Config) *slog.Logger {
	dev := cfg.Env == "dev"

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: dev,
	}

	format := strings.ToLower(cfg.Format)
	if format == "" && dev {
		format = "text"
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

// parseLevel leans on slog's own level names; anything unrecognised runs at
// info rather than failing startup.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
