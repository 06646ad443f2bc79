package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger. Deployments run JSON for
// log shipping; the text handler is for local work against the seed data.
// AddSource stays on in both: payment and status-write logs are only useful
// when they point at the call site.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}
