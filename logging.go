package relaydb

import (
	"os"

	"github.com/rs/zerolog"
)

// defaultLogger builds a console-formatted zerolog.Logger at info level,
// used when Config.Logger is left unset and verbose logging is off.
func defaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}
