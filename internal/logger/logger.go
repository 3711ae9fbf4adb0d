package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger.  APP_ENV=dev switches to the console
// writer; LOG_LEVEL picks the level (default info, debug in dev).
func New() zerolog.Logger {
	return NewWithWriter(os.Stderr, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// NewWithWriter is New with explicit inputs.
func NewWithWriter(w io.Writer, env, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	dev := env == "dev" || env == "development"
	if dev {
		w = zerolog.ConsoleWriter{Out: w}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if dev {
			lvl = zerolog.DebugLevel
		}
	}
	return zerolog.New(w).With().Timestamp().Str("app", "acappella-workshop").Logger().Level(lvl)
}
