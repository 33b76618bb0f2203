package contract

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared structured logger. CLI entry points reconfigure it
// through InitLogging before running a command.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)

// InitLogging reconfigures the shared logger. With pretty set, output goes
// through the console writer; otherwise raw JSON lines are emitted, which
// suits the queue worker running under a log collector.
func InitLogging(verbose, pretty bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if pretty {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger().Level(level)
		return
	}
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
}

// LogFatal logs the error and exits with a non-zero status.
func LogFatal(msg string, err error) {
	Logger.Fatal().Err(err).Msg(msg)
}

// LogWarning logs a warning message.
func LogWarning(msg string) {
	Logger.Warn().Msg(msg)
}
