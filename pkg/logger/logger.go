// Package logger is the process-wide log sink. Nothing is written until Init
// is called, so library users that never call it get silent helpers.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger = newLogger(io.Discard)
	logFile      *os.File
	mu           sync.Mutex
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	level := globalLogger.GetLevel()
	logFile = f
	globalLogger = newLogger(f)
	globalLogger.SetLevel(level)

	return nil
}

// InitWriter points the global logger at w (tests, stderr).
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	level := globalLogger.GetLevel()
	globalLogger = newLogger(w)
	globalLogger.SetLevel(level)
}

// SetVerbose toggles debug output.
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	if verbose {
		globalLogger.SetLevel(logrus.DebugLevel)
	} else {
		globalLogger.SetLevel(logrus.InfoLevel)
	}
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = newLogger(io.Discard)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	get().Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

// WithFields returns an entry carrying structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}

func get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	return globalLogger
}
