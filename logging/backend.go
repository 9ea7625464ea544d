package logging

import (
	"fmt"
	"io"
	"os"
)

// Backend names accepted by New.
const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
	BackendZap     = "zap"
)

// Options selects and configures a Logger backend.
type Options struct {
	Backend string    // slog (default), zerolog or zap
	Level   LogLevel  // minimum level
	Format  string    // json (default) or text
	Output  io.Writer // defaults to os.Stderr
}

// New builds a Logger for the configured backend.
func New(opts Options) (Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	switch opts.Backend {
	case "", BackendSlog:
		cfg := DefaultLoggerConfig()
		cfg.Level = opts.Level
		cfg.Output = out
		cfg.AddSource = false
		if opts.Format != "" {
			cfg.Format = opts.Format
		}
		return NewLogger(cfg), nil
	case BackendZerolog:
		return NewZerologLogger(opts.Level, opts.Format, out), nil
	case BackendZap:
		return NewZapLogger(opts.Level, opts.Format, out), nil
	default:
		return nil, fmt.Errorf("logging: unknown backend %q", opts.Backend)
	}
}
