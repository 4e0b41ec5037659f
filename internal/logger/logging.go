// Package logger wraps charmbracelet/log with the prefixed loggers used across packages.
package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

// New creates a prefixed logger that inherits the global log level.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// Quiet creates a prefixed logger without timestamps, for interactive output.
func Quiet(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: false,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}
