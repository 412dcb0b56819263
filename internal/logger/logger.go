// Package logger provides leveled logging for the service.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes leveled messages to a single destination.
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a logger with the given minimum level and format.
// The "text" format includes source file locations.
func New(level string, format string) *Logger {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	return &Logger{
		level: parseLevel(level),
		out:   log.New(os.Stderr, "", flags),
	}
}

func (l *Logger) log(depth int, min Level, tag string, format string, args ...interface{}) {
	if l == nil || l.level > min {
		return
	}
	_ = l.out.Output(depth, fmt.Sprintf(tag+format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(3, DebugLevel, "[DEBUG] ", format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(3, InfoLevel, "[INFO] ", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(3, WarnLevel, "[WARN] ", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(3, ErrorLevel, "[ERROR] ", format, args...)
}

var defaultLogger *Logger

// Init initializes the package-level logger used throughout the service.
func Init(level string, format string) {
	defaultLogger = New(level, format)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.log(3, DebugLevel, "[DEBUG] ", format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.log(3, InfoLevel, "[INFO] ", format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.log(3, WarnLevel, "[WARN] ", format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.log(3, ErrorLevel, "[ERROR] ", format, args...)
}

// Fatal logs the message and terminates the process.
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	if defaultLogger != nil {
		_ = defaultLogger.out.Output(2, msg)
	} else {
		log.Print(msg)
	}
	os.Exit(1)
}
