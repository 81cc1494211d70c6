// Package observability wires up zerolog the way every engramic process
// logs: one global logger, optionally to a file, with the standard library
// logger redirected into it so nothing falls outside the structured stream.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global zerolog logger for an engramic process
// and returns it already tagged with "app": every log line from every
// service and plugin in this binary traces back to one process this way,
// the same base identifier ForService's per-service child loggers build on
// top of. If logPath is non-empty, logs are written there (append mode)
// instead of stdout; if opening the file fails, logging falls back to
// stdout and the error is printed to stderr. pretty selects a human-
// readable console writer (for local runs) over newline-delimited JSON (for
// anything fed to a log collector), mirroring the JSONOutput toggle every
// zerolog-based service in this codebase's lineage exposes.
func InitLogger(logPath string, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
			pretty = false
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(level))
	log.Logger = zerolog.New(w).With().Timestamp().Str("app", "engramic").Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return log.Logger
}

// parseLevel normalizes a config-supplied level string ("warning" is
// accepted as an alias for zerolog's "warn") and falls back to info for
// anything it doesn't recognize.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
