// Package logger provides structured JSON logging for the GameHub engine.
// It is deliberately small: levels, fields, a With chain and the handful of
// engine-specific field constructors the worker logs with.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level. Anything unrecognized is INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field    { return Field{Key: key, Value: value} }
func Int(key string, value int) Field   { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Err renders an error under the "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Engine field constructors.
func UserID(id string) Field        { return String("user_id", id) }
func LeaderboardID(id string) Field { return String("leaderboard_id", id) }
func AchievementID(id string) Field { return String("achievement_id", id) }
func Metric(name string) Field      { return String("metric", name) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return String("latency", d.String()) }

// LogEntry is the JSON shape of one emitted line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes one JSON object per line. With derives child loggers that
// carry bound fields; the mutex guards only the write.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	level     Level
	bound     []Field
	addCaller bool
}

// Options configures a Logger.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// New builds a Logger; a nil Output goes to stdout.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{output: out, level: opts.Level, addCaller: opts.AddCaller}
}

// Default is an INFO-level logger on stdout with caller annotation.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// With returns a child Logger carrying the extra fields. The parent's bound
// slice is never shared, so siblings cannot clobber each other.
func (l *Logger) With(fields ...Field) *Logger {
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(append(bound, l.bound...), fields...)
	return &Logger{
		output:    l.output,
		level:     l.level,
		bound:     bound,
		addCaller: l.addCaller,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Fields:    mergeFields(l.bound, fields),
	}
	if l.addCaller {
		entry.Caller = callerOf(3)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"timestamp":%q,"level":%q,"message":%q}`,
			entry.Timestamp, entry.Level, msg))
	}
	line = append(line, '\n')

	l.mu.Lock()
	l.output.Write(line)
	l.mu.Unlock()
}

// mergeFields builds the entry map, call-site fields overriding bound ones.
func mergeFields(bound, extra []Field) map[string]any {
	n := len(bound) + len(extra)
	if n == 0 {
		return nil
	}
	m := make(map[string]any, n)
	for _, f := range bound {
		m[f.Key] = f.Value
	}
	for _, f := range extra {
		m[f.Key] = f.Value
	}
	return m
}

// callerOf returns "file.go:123" for the frame skip levels up.
func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}
