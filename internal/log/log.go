// Package log exports logging related types and functions used by oraq
// and its internal packages.
package log

import (
	"fmt"
	"io"
	"os"
	stdlog "log"
	"sync"
)

// Level represents a log level.
type Level int32

const (
	// DebugLevel is the lowest level of logging.
	DebugLevel Level = iota - 1
	// InfoLevel is used for general informational log messages.
	InfoLevel
	// WarnLevel is used for undesired but non-critical events.
	WarnLevel
	// ErrorLevel is used for errors that should be fixed.
	ErrorLevel
	// FatalLevel is used for errors that make the process unable to continue.
	FatalLevel
)

// Base supports logging at various log levels.
type Base interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}

// NewLogger returns a new instance of Logger that writes to out.
func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		logger: stdlog.New(out, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds|stdlog.LUTC),
		level:  DebugLevel,
	}
}

// Logger is the default logger used by oraq. It writes level-prefixed,
// UTC-timestamped lines with stdlib's log package, matching the teacher's
// internal logger shape.
type Logger struct {
	mu     sync.Mutex
	logger *stdlog.Logger
	level  Level
}

// SetLevel sets the minimum level this logger will emit.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

func (l *Logger) shouldLog(lvl Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lvl >= l.level
}

func (l *Logger) log(lvl Level, prefix string, v ...interface{}) {
	if !l.shouldLog(lvl) {
		return
	}
	l.logger.Print(prefix + fmt.Sprint(v...))
}

func (l *Logger) logf(lvl Level, prefix, format string, v ...interface{}) {
	if !l.shouldLog(lvl) {
		return
	}
	l.logger.Printf(prefix+format, v...)
}

func (l *Logger) Debug(args ...interface{}) { l.log(DebugLevel, "DEBUG: ", args...) }
func (l *Logger) Info(args ...interface{})  { l.log(InfoLevel, "INFO: ", args...) }
func (l *Logger) Warn(args ...interface{})  { l.log(WarnLevel, "WARN: ", args...) }
func (l *Logger) Error(args ...interface{}) { l.log(ErrorLevel, "ERROR: ", args...) }
func (l *Logger) Fatal(args ...interface{}) {
	l.log(FatalLevel, "FATAL: ", args...)
	os.Exit(1)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, "DEBUG: ", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, "INFO: ", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, "WARN: ", format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, "ERROR: ", format, args...) }
