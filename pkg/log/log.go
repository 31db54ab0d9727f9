package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger every component logger derives
// from. Init must run before any component calls WithComponent.
var Logger zerolog.Logger

// Level is the string form of a log level, as accepted from config files
// and command-line flags.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerologLevel resolves l to its zerolog.Level, defaulting to info for
// an empty or unrecognized value.
func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init sets the global log level and constructs Logger: JSON lines for
// machine consumption, or a console writer for a human at a terminal.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent derives a child of the global Logger tagged with which
// subsystem (scheduler, trove.store, rpc, ...) emitted a line.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCollection tags base — normally a component logger — with the
// collection a log line concerns.
func WithCollection(base zerolog.Logger, collID string) zerolog.Logger {
	return base.With().Str("collection_id", collID).Logger()
}

// WithHandle tags base with the dataspace handle a log line concerns.
func WithHandle(base zerolog.Logger, handle string) zerolog.Logger {
	return base.With().Str("handle", handle).Logger()
}

// WithSID tags base with the server identity a log line concerns.
func WithSID(base zerolog.Logger, sid string) zerolog.Logger {
	return base.With().Str("sid", sid).Logger()
}

// Info, Debug, Warn, Error, and Fatal write one line through the global
// Logger, for call sites that have no component logger of their own.
func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }
func Fatal(msg string) { Logger.Fatal().Msg(msg) }

// Errorf writes msg through the global Logger with err attached.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
