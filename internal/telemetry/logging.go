package telemetry

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the service-wide structured logger. Level comes from
// LOG_LEVEL (debug/info/warn/error); JSON output unless LOG_PRETTY is set.
func NewLogger(service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	var logger zerolog.Logger
	if os.Getenv("LOG_PRETTY") != "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}
