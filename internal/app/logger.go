package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production runs emit JSON for log
// aggregation; everything else gets text with source locations for debugging.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && cfg.IsProduction() {
		opts.AddSource = false
	}
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
