package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger. Level is "trace" | "debug" | "info" | "warn" | "error";
// format "console" writes human-readable lines, anything else writes JSON.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.ToLower(format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component tags a logger with the subsystem that owns it.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// ForJob tags a logger with a job id and workflow.
func ForJob(base zerolog.Logger, jobID, workflow string) zerolog.Logger {
	return base.With().Str("job_id", jobID).Str("workflow", workflow).Logger()
}

// TraceDuration logs start and end with elapsed duration at DEBUG level.
// Usage: defer logging.TraceDuration(logger, "render")()
func TraceDuration(logger zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Debug().Str("op", name).Msg("start")
	return func() {
		logger.Debug().Str("op", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}
