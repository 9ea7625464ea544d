// Package logging provides a minimal logging interface and adapters for dexter.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// taking a message plus alternating key/value pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - StructuredLogger, a slog based logger with component / session context
//     and helpers for model calls and action executions
//   - ZerologAdapter and ZapAdapter for applications standardised on those
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, err := logging.New(logging.Options{Backend: "zerolog", Level: logging.LogLevelDebug})
//	eng, err := engine.New(llm, store, func(o *engine.Options) { o.Logger = logger })
package logging
