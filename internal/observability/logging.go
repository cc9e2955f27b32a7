// Package observability holds the ambient logging and instrumentation
// helpers shared by every subsystem: the process logger, trace-enriched
// context loggers, an instrumented HTTP client, and payload redaction for
// request logging.
package observability

import (
	"fmt"
	stdlog "log"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. When logPath is
// non-empty, output goes to that file (append mode); otherwise to stdout.
// A file that cannot be opened degrades to stdout with a note on stderr
// rather than failing startup.
func InitLogger(logPath, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)

	// Standard-library log output (pgx notices, http.Server errors) is
	// routed through zerolog so every line is structured.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
