// Package logging provides structured logging using bolt.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
)

var (
	defaultLogger *bolt.Logger
	once          sync.Once
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is the output format (json or console).
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Output is the output destination.
	Output io.Writer `json:"-" yaml:"-"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// parseLevel converts a string level to bolt.Level.
func parseLevel(s string) bolt.Level {
	switch s {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "info":
		return bolt.INFO
	case "warn":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// New builds a logger from the configuration.
func New(config Config) *bolt.Logger {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	var handler bolt.Handler
	if config.Format == "json" {
		handler = bolt.NewJSONHandler(output)
	} else {
		handler = bolt.NewConsoleHandler(output)
	}
	return bolt.New(handler).SetLevel(parseLevel(config.Level))
}

// Init initializes the default logger with the given configuration.
func Init(config Config) {
	once.Do(func() {
		defaultLogger = New(config)
	})
}

// Get returns the default logger, initializing if necessary.
func Get() *bolt.Logger {
	if defaultLogger == nil {
		Init(DefaultConfig())
	}
	return defaultLogger
}

// Logger scopes log events to a specific bolt logger. The zero value logs
// to the default logger.
type Logger struct {
	l *bolt.Logger
}

// From wraps a bolt logger. A nil logger uses the default logger.
func From(l *bolt.Logger) Logger {
	return Logger{l: l}
}

func (lg Logger) bolt() *bolt.Logger {
	if lg.l == nil {
		return Get()
	}
	return lg.l
}

// Debug returns a debug-level event.
func (lg Logger) Debug() *LogEvent { return &LogEvent{event: lg.bolt().Debug()} }

// Info returns an info-level event.
func (lg Logger) Info() *LogEvent { return &LogEvent{event: lg.bolt().Info()} }

// Warn returns a warn-level event.
func (lg Logger) Warn() *LogEvent { return &LogEvent{event: lg.bolt().Warn()} }

// Error returns an error-level event.
func (lg Logger) Error() *LogEvent { return &LogEvent{event: lg.bolt().Error()} }

// LogEvent is a wrapper that allows adding Fields to a bolt.Event.
type LogEvent struct {
	event *bolt.Event
}

// Add applies a field to the event and returns the wrapper for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg sends the log event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Debug returns a LogEvent for the default logger.
func Debug() *LogEvent { return Logger{}.Debug() }

// Info returns a LogEvent for the default logger.
func Info() *LogEvent { return Logger{}.Info() }

// Warn returns a LogEvent for the default logger.
func Warn() *LogEvent { return Logger{}.Warn() }

// Error returns a LogEvent for the default logger.
func Error() *LogEvent { return Logger{}.Error() }
