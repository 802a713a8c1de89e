package utils

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// LogLevel orders message severities. Messages below the logger's level
// are dropped.
type LogLevel int

const (
	Debug    LogLevel = 10
	Info     LogLevel = 20
	Warning  LogLevel = 30
	Error    LogLevel = 40
	Critical LogLevel = 50
)

// Logger is a leveled logger with a component prefix and key=value
// structured fields. One instance per component, created at construction.
type Logger struct {
	prefix string
	logger *log.Logger

	mu    sync.Mutex
	level LogLevel
}

// NewLogger creates a logger for the named component. The optional level
// defaults to Warning.
func NewLogger(prefix string, level ...LogLevel) *Logger {
	lvl := Warning
	if len(level) > 0 {
		lvl = level[0]
	}
	return &Logger{
		prefix: prefix,
		logger: log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		level:  lvl,
	}
}

// SetLogLevel changes the threshold at runtime.
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(Info, "INFO", msg, keyvals...)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(Warning, "WARN", msg, keyvals...)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(Error, "ERROR", msg, keyvals...)
}

func (l *Logger) emit(level LogLevel, tag, msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level > level {
		return
	}
	l.logger.Println(format(tag, msg, keyvals...))
}

// format renders "[LEVEL] msg k=v k=v". A trailing key without a value is
// dropped.
func format(tag, msg string, keyvals ...interface{}) string {
	out := fmt.Sprintf("[%s] %s", tag, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		out += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	return out
}
