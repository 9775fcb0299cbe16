// Package logger builds the structured logger handed to the engine.
// Nothing here is global: every component receives its logger explicitly.
package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Level parses a level name, falling back to info.
func Level(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a logger writing to w at the named level. Format "console"
// gives human-readable output; anything else emits JSON lines.
func New(w io.Writer, level, format string) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(Level(level)).With().Timestamp().Logger()
}
