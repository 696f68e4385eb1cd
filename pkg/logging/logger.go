// Package logging wraps charmbracelet/log with the process-wide logger and a
// buffer-backed variant for test assertions.
package logging

import (
	"bytes"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is the shared structured logger handed down through constructors.
type Logger struct {
	*log.Logger
	buf *bytes.Buffer
}

var (
	logger *Logger
	once   sync.Once
)

// GetLogger returns the process-wide logger, creating it on first use.
// DEBUG=1 enables verbose output with caller reporting.
func GetLogger() *Logger {
	once.Do(func() {
		baseLogger := log.New(os.Stderr)

		if os.Getenv("DEBUG") == "1" {
			baseLogger = log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				Prefix:          "beam",
			})
			baseLogger.SetLevel(log.DebugLevel)
		} else {
			baseLogger.SetLevel(log.InfoLevel)
		}

		logger = &Logger{Logger: baseLogger}
	})
	return logger
}

// NewTestLogger returns a logger that captures output in memory at debug
// level, for assertions in tests.
func NewTestLogger() *Logger {
	var buf bytes.Buffer
	baseLogger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		Level:           log.DebugLevel,
	})
	return &Logger{Logger: baseLogger, buf: &buf}
}

// GetOutput returns everything the test logger has written so far.
func (l *Logger) GetOutput() string {
	if l.buf == nil {
		return ""
	}
	return l.buf.String()
}
