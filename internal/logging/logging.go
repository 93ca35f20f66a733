// Package logging provides a small leveled logger for the CLX tools and service.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// Logger provides leveled logging. Loggers derived with With share the
// level and output of their parent.
type Logger struct {
	state     *state
	component string
}

type state struct {
	mu     sync.RWMutex
	level  Level
	json   bool
	logger *log.Logger
}

type jsonEntry struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Msg       string `json:"msg"`
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		state: &state{
			level:  level,
			logger: log.New(w, "", log.LstdFlags|log.LUTC),
		},
	}
}

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, LevelInfo)
	})
	return defaultLogger
}

// With returns a logger that prefixes every message with component.
func (l *Logger) With(component string) *Logger {
	if l.component != "" {
		component = l.component + "/" + component
	}
	return &Logger{state: l.state, component: component}
}

// SetOutput redirects the logger (and every logger derived from it).
func (l *Logger) SetOutput(w io.Writer) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.logger.SetOutput(w)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.level = level
}

// SetLevelFromString sets the log level from a string
func (l *Logger) SetLevelFromString(levelStr string) {
	l.SetLevel(ParseLevel(levelStr))
}

// ParseLevel maps a level name to a Level; unknown names give LevelInfo.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	l.state.mu.RLock()
	defer l.state.mu.RUnlock()
	return l.state.level
}

// GetLevelString returns the current log level as a string
func (l *Logger) GetLevelString() string {
	return levelNames[l.GetLevel()]
}

// SetFormat switches between "text" and "json" output. Unknown formats mean text.
func (l *Logger) SetFormat(format string) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.json = strings.EqualFold(format, "json")
	if l.state.json {
		l.state.logger.SetFlags(0)
	} else {
		l.state.logger.SetFlags(log.LstdFlags | log.LUTC)
	}
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.GetLevel()
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)

	l.state.mu.RLock()
	defer l.state.mu.RUnlock()

	if l.state.json {
		line, err := json.Marshal(jsonEntry{
			Time:      time.Now().UTC().Format(time.RFC3339),
			Level:     strings.ToLower(levelNames[level]),
			Component: l.component,
			Msg:       msg,
		})
		if err == nil {
			l.state.logger.Print(string(line))
			return
		}
	}

	if l.component != "" {
		msg = l.component + ": " + msg
	}
	l.state.logger.Printf("[%s] %s", levelNames[level], msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Package-level convenience functions

// SetLevel sets the default logger's level
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetLevelFromString sets the default logger's level from a string
func SetLevelFromString(levelStr string) {
	Default().SetLevelFromString(levelStr)
}

// GetLevelString returns the default logger's level as a string
func GetLevelString() string {
	return Default().GetLevelString()
}

// SetFormat sets the default logger's output format
func SetFormat(format string) {
	Default().SetFormat(format)
}

// SetOutput redirects the default logger
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// With returns a component logger derived from the default logger
func With(component string) *Logger {
	return Default().With(component)
}

// Debug logs a debug message to the default logger
func Debug(format string, args ...interface{}) {
	Default().Debug(format, args...)
}

// Info logs an info message to the default logger
func Info(format string, args ...interface{}) {
	Default().Info(format, args...)
}

// Warn logs a warning message to the default logger
func Warn(format string, args ...interface{}) {
	Default().Warn(format, args...)
}

// Error logs an error message to the default logger
func Error(format string, args ...interface{}) {
	Default().Error(format, args...)
}
