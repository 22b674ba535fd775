// Package log wires up the agent's single zerolog logger. Every long-lived
// component (supervisor, tailer, FIM monitor, shipper, verifier) is handed
// its own child logger carrying a "component" field, rather than reaching
// for package-level log functions, so a line can always be traced back to
// the subsystem that wrote it.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init must be called once, before any
// component logger is derived from it with WithComponent.
var Logger zerolog.Logger

// Level is the configured minimum severity, set from the CLI's
// --log-level flag or overridden by the config file's debug_logging flag.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the global logger.
type Config struct {
	Level Level
	// JSONOutput selects structured JSON records, for a process supervised
	// by something that collects logs, over the human-readable console
	// writer used when run attached to a terminal.
	JSONOutput bool
	// Output defaults to os.Stdout when nil.
	Output io.Writer
}

// Init builds the global logger from cfg. It is called once at process
// startup, before any component derives its own logger from Logger via
// WithComponent.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child of Logger scoped to one subsystem, e.g.
// "tailer", "fim", "shipper", "supervisor", "verifier". This is the only
// logger constructor the agent's components take: each is built with
// exactly one, at construction, and keeps using it for its own lifetime —
// individual log lines add their own "path" or other fields at the call
// site instead of deriving a new logger per file.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
