// Package logging provides structured logging for the rno-g-acq daemon.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the level-named call shape used
// throughout the daemon (Debug/Info/Warn/Error, each with a key-value
// variant, plus printf-style helpers for existing call sites).
type Logger struct {
	zl zerolog.Logger
}

// Config holds logging configuration.
type Config struct {
	Level  zerolog.Level
	Output io.Writer
	Pretty bool
}

// DefaultConfig returns a sensible default configuration: info level,
// human-readable console output on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  zerolog.InfoLevel,
		Output: os.Stderr,
		Pretty: true,
	}
}

// NewLogger creates a new logger from config.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if config.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(output).With().Timestamp().Logger().Level(config.Level)
	return &Logger{zl: zl}
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Default returns the process default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault installs the process default logger.
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// With returns a child logger carrying a named component field, used to
// tag log lines by worker thread (acquire/monitor/writer/status-serve).
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

func logEvent(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if key == "" {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, kv ...any) { logEvent(l.zl.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { logEvent(l.zl.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { logEvent(l.zl.Warn(), msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { logEvent(l.zl.Error(), msg, kv) }

func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Printf exists for compatibility with simple external logging consumers
// that want a single format method; it logs at info level.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Discard returns a logger with all levels disabled, for tests that need
// a *Logger but don't want its output mixed into test run output.
func Discard() *Logger {
	return NewLogger(&Config{Level: zerolog.Disabled, Output: io.Discard})
}

// Global convenience functions operating on the default logger.
func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
