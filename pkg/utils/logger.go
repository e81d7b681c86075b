// Package utils provides logging and timing helpers shared by the engine.
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is the debug log level.
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level.
	LevelInfo
	// LevelWarn is the warning log level.
	LevelWarn
	// LevelError is the error log level.
	LevelError
)

// String returns the string representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is the interface for logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogFormat selects the zerolog output encoding.
type LogFormat string

const (
	// FormatConsole writes human readable lines.
	FormatConsole LogFormat = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON LogFormat = "json"
)

// ZeroLogger adapts a zerolog.Logger to the Logger interface.
type ZeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a zerolog-backed logger writing to output.
func NewLogger(level LogLevel, format LogFormat, output io.Writer) *ZeroLogger {
	if output == nil {
		output = os.Stderr
	}
	if format != FormatJSON {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}
	zl := zerolog.New(output).Level(level.zerolog()).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl}
}

// Debug logs a debug message.
func (l *ZeroLogger) Debug(msg string, args ...interface{}) {
	l.zl.Debug().Msgf(msg, args...)
}

// Info logs an info message.
func (l *ZeroLogger) Info(msg string, args ...interface{}) {
	l.zl.Info().Msgf(msg, args...)
}

// Warn logs a warning message.
func (l *ZeroLogger) Warn(msg string, args ...interface{}) {
	l.zl.Warn().Msgf(msg, args...)
}

// Error logs an error message.
func (l *ZeroLogger) Error(msg string, args ...interface{}) {
	l.zl.Error().Msgf(msg, args...)
}

// WithField creates a new logger with the given field.
func (l *ZeroLogger) WithField(key string, value interface{}) Logger {
	return &ZeroLogger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields creates a new logger with the given fields.
func (l *ZeroLogger) WithFields(fields map[string]interface{}) Logger {
	return &ZeroLogger{zl: l.zl.With().Fields(fields).Logger()}
}

// ParseLogLevel parses a string to LogLevel.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewLogger(LevelInfo, FormatConsole, os.Stderr)
)

// SetGlobalLogger sets the global logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NullLogger is a logger that discards all log messages.
type NullLogger struct{}

// Debug does nothing.
func (l *NullLogger) Debug(msg string, args ...interface{}) {}

// Info does nothing.
func (l *NullLogger) Info(msg string, args ...interface{}) {}

// Warn does nothing.
func (l *NullLogger) Warn(msg string, args ...interface{}) {}

// Error does nothing.
func (l *NullLogger) Error(msg string, args ...interface{}) {}

// WithField returns the same NullLogger.
func (l *NullLogger) WithField(key string, value interface{}) Logger {
	return l
}

// WithFields returns the same NullLogger.
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}

// FormatDuration renders d with a unit suited to its magnitude.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
