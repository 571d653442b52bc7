package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// ParseLevel maps the CLI --log-level value (DEBUG, INFO, ERROR, any case)
// to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level    Level
	Colorize bool // console writer with colors; JSON otherwise
	Output   io.Writer
	// Sanitizer, when set, is spliced under the sink so secrets never
	// reach any log output.
	Sanitizer *sanitize.Sanitizer
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Sanitizer != nil {
		output = sanitize.NewWriter(output, cfg.Sanitizer)
	}

	if cfg.Colorize {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithUser creates a child logger scoped to a chat user
func WithUser(userID int64, username string) zerolog.Logger {
	return Logger.With().
		Str("user_id", strconv.FormatInt(userID, 10)).
		Str("username", username).
		Logger()
}

// WithUpdate creates a child logger carrying the dispatch correlation id
func WithUpdate(updateID string) zerolog.Logger {
	return Logger.With().Str("update_id", updateID).Logger()
}

// Denied emits the distinguished severity used for refused privileged
// operations on the given logger. Emitted at error level with a stable
// marker field so audit greps stay trivial.
func Denied(logger zerolog.Logger) *zerolog.Event {
	return logger.Error().Str("severity", "DENIED")
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
