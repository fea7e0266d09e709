// ABOUTME: Structured logger construction shared by every entry point
// ABOUTME: Wraps charmbracelet/log with level and format taken from config
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options selects level and output format
type Options struct {
	Level  string
	Format string
	Prefix string
}

// New builds a logger writing to w (stderr when nil)
func New(w io.Writer, opts Options) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          opts.Prefix,
		Level:           ParseLevel(opts.Level),
	})
	if strings.EqualFold(opts.Format, "json") {
		logger.SetFormatter(log.JSONFormatter)
		logger.SetTimeFormat(time.RFC3339)
	}
	return logger
}

// ParseLevel maps a level name to a log level, defaulting to info
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	}
	return log.InfoLevel
}

// Discard returns a logger that drops everything, for tests
func Discard() *log.Logger {
	return log.New(io.Discard)
}
