// Package logging provides a simple leveled logging facade for the RDP core,
// backed by log/slog with a tint handler.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

var (
	mu     sync.RWMutex
	level  = new(slog.LevelVar)
	logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
)

// Default returns the shared logger instance.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput replaces the shared logger with one writing to the given file,
// keeping the current level.
func SetOutput(f *os.File) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(tint.NewHandler(f, &tint.Options{Level: level}))
}

// SetLevel sets the minimum log level.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetLevelFromString sets the log level from a string, defaulting to info.
func SetLevelFromString(levelStr string) {
	switch strings.ToLower(levelStr) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		SetLevel(slog.LevelInfo)
	}
}

// Debug logs a formatted debug message.
func Debug(format string, args ...interface{}) {
	Default().Debug(fmt.Sprintf(format, args...))
}

// Info logs a formatted info message.
func Info(format string, args ...interface{}) {
	Default().Info(fmt.Sprintf(format, args...))
}

// Warn logs a formatted warning message.
func Warn(format string, args ...interface{}) {
	Default().Warn(fmt.Sprintf(format, args...))
}

// Error logs a formatted error message.
func Error(format string, args ...interface{}) {
	Default().Error(fmt.Sprintf(format, args...))
}
