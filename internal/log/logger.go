package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production emits JSON lines; every other
// environment gets the colored console writer at debug level.
func New(environment string, service string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if environment != "production" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Str("service", service).
		Logger()

	if environment != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
