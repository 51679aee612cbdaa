package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. DEV gets a human readable console writer,
// everything else structured JSON. The global zerolog logger is replaced so
// packages logging through zerolog/log share the same sink.
func New(env, level string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if env == "DEV" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// Component scopes a logger to a named component.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
