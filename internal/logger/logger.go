package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu          sync.RWMutex
	base        = zerolog.Nop()
	enabledFlag bool
)

// Init initializes the logger.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	if !enabled {
		base = zerolog.Nop()
		enabledFlag = false
		return nil
	}

	var writers []io.Writer

	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	if console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})
	}

	zerolog.TimeFieldFormat = time.RFC3339
	base = zerolog.New(io.MultiWriter(writers...)).
		Level(parseLevel(levelStr)).
		With().Timestamp().Logger()
	enabledFlag = true
	return nil
}

// Set replaces the base logger. Tests use it with zerolog.NewTestWriter.
func Set(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	enabledFlag = true
}

// Component returns a structured logger tagged with the component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

// Enabled reports whether logging output is active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabledFlag
}

func parseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	l := current()
	l.Debug().Msgf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	l := current()
	l.Info().Msgf(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	l := current()
	l.Warn().Msgf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	l := current()
	l.Error().Msgf(format, args...)
}
