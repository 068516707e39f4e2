// Package logging configures structured logging with zerolog.
//
// The browser owns the terminal, so logs go to a file by default. Packages
// obtain component loggers through NewLogger after Setup or Open ran.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output receives the log lines. When nil, Open writes to File.
	Output io.Writer

	// File is the log file path used by Open when Output is nil.
	File string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		File:   "catalog.log",
	}
}

// Setup configures the global zerolog logger to write to cfg.Output
// (os.Stderr when nil).
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.TimeOnly,
			NoColor:    output != os.Stderr,
		}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// Open is Setup for cfg.File: it appends to the file (creating it) unless
// cfg.Output is set. The returned closer releases the file.
func Open(cfg Config) (zerolog.Logger, io.Closer, error) {
	if cfg.Output != nil || cfg.File == "" {
		return Setup(cfg), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	cfg.Output = f
	return Setup(cfg), f, nil
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Binding state changes (started, committed, stale completion dropped)
//   - Page and brand changes
//   - Chunked item fetches
//
// Info: Normal operation events
//   - Successful API calls
//   - Automatic and manual reloads
//   - Startup/shutdown, metrics endpoint
//
// Warn: Warning conditions that don't prevent operation
//   - Retry budget warnings or unavailable budget store
//   - Automatic reload attempts exhausted or blocked
//   - Failed chunk of a chunked fetch
//
// Error: Error conditions requiring attention
//   - Failed fetches shown to the user
//   - Critical retry budget blocks
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (api-client, session, retry-budget, tui)
//   - action: remote action name (get_ids, get_items, get_fields, filter)
//   - binding: session binding name (ids, items, brands, brand_ids, brand_items)
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: Error classification (client, server, network, decode)
//   - attempt / backoff: automatic reload attempt and delay
