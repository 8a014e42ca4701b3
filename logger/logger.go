// Package logger provides structured logging for the Sublime CLI.
//
// It wraps the standard library slog. Initialize it once at startup
// from the logging section of the configuration:
//
//	logFile, err := logger.Initialize(cfg.Logging)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if logFile != nil {
//		defer logFile.Close()
//	}
//
// Diagnostics default to stderr so they never interleave with command
// output, which goes to stdout or the selected output file.
package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sublime-security/sublime-cli/config"
)

var globalLogger *slog.Logger

// Initialize sets up the global logger based on configuration. When the
// output is a file path the returned handle must be closed by the caller;
// for stdout/stderr the returned handle is nil.
func Initialize(cfg config.LoggingConfig) (*os.File, error) {
	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	format := cfg.Format
	if format == "" {
		format = "console"
	}
	level := cfg.Level
	if level == "" {
		level = "warn"
	}

	handlerOpts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}

	var w *os.File
	var logFile *os.File
	switch output {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: failed to open log file '%s': %v. Falling back to stderr.\n", output, err)
			w = os.Stderr
		} else {
			w = f
			logFile = f
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return logFile, nil
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Get returns the global logger instance
func Get() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Debug logs a debug message with optional key-value pairs
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...any) {
	Get().Error(msg, args...)
	os.Exit(1)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
