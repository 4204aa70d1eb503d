package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel converts a level name to a LogLevel, defaulting to INFO
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides leveled logging with a per-component prefix
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	out    io.Writer
	errOut io.Writer
	prefix string
}

// default logger instance
var std = New(os.Stderr, os.Stderr, INFO, "")

// New creates a new logger instance
func New(out, errOut io.Writer, level LogLevel, prefix string) *Logger {
	return &Logger{
		level:  level,
		out:    out,
		errOut: errOut,
		prefix: prefix,
	}
}

// WithPrefix returns a child logger sharing the parent's outputs and level
// but tagged with its own prefix. Child prefixes compose: a "daemon" child
// of an "unmind" logger logs as "unmind/daemon".
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.prefix != "" {
		prefix = l.prefix + "/" + prefix
	}
	return &Logger{
		level:  l.level,
		out:    l.out,
		errOut: l.errOut,
		prefix: prefix,
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects both output streams, mainly for tests
func (l *Logger) SetOutput(out, errOut io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	l.errOut = errOut
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// log is the internal logging method
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	out := l.out
	if level >= ERROR {
		out = l.errOut
	}

	prefix := l.prefix
	if prefix != "" {
		prefix = " [" + prefix + "]"
	}

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(out, "%s [%s]%s %s\n", ts, levelNames[level], prefix, fmt.Sprintf(format, args...))
}

// Package-level convenience functions using the default logger

// Default returns the package-wide default logger
func Default() *Logger {
	return std
}

// SetLevel sets the minimum log level for the default logger
func SetLevel(level LogLevel) {
	std.SetLevel(level)
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	std.Debug(format, args...)
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	std.Info(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	std.Warn(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	std.Error(format, args...)
}
