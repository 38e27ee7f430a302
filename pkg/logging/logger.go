// Package logging provides structured logging for interview-scribe.
// It wraps zerolog to provide a consistent logging interface with support for
// JSON output (files, pipes) and human-readable output (interactive terminals).
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys for run information.
const (
	RunIDKey ContextKey = "run_id"
	FileKey  ContextKey = "file"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// rank orders levels for sink filtering.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// ServiceName is included in all log entries.
	ServiceName string

	// JSONFormat enables JSON output when true, human-readable when false.
	JSONFormat bool

	// Output sets the writer for logs (defaults to os.Stderr).
	Output io.Writer

	// Sinks receive a copy of every entry at or above their own threshold.
	Sinks []Sink
}

// DefaultConfig returns a Config with sensible defaults for interactive use.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "scribe",
		JSONFormat:  false,
		Output:      os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional fields.
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields.
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger with the given fields attached to all subsequent logs.
	With(fields ...Field) Logger

	// WithContext returns a new Logger that carries the run id and file from the context.
	WithContext(ctx context.Context) Logger

	// WithSink returns a new Logger that also feeds the given sink.
	WithSink(sink Sink) Logger

	// Zerolog returns the underlying zerolog.Logger for use with legacy components.
	Zerolog() zerolog.Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field with the given key and value.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// logger implements the Logger interface using zerolog.
type logger struct {
	zl          zerolog.Logger
	serviceName string
	sinks       []Sink
	bound       []Field
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := parseLevel(cfg.Level)

	var zl zerolog.Logger
	if cfg.JSONFormat {
		zl = zerolog.New(output).
			Level(level).
			With().
			Timestamp().
			Str("service_name", cfg.ServiceName).
			Logger()
	} else {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
		zl = zerolog.New(consoleWriter).
			Level(level).
			With().
			Timestamp().
			Logger()
	}

	return &logger{
		zl:          zl,
		serviceName: cfg.ServiceName,
		sinks:       cfg.Sinks,
	}
}

// Zerolog returns the underlying zerolog.Logger for use with legacy components.
func (l *logger) Zerolog() zerolog.Logger {
	return l.zl
}

// ParseLevel converts a user supplied level name, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

// parseLevel converts Level to zerolog.Level.
func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message.
func (l *logger) Debug(msg string, fields ...Field) {
	event := l.zl.Debug()
	event = addFields(event, fields)
	event.Msg(msg)

	l.sendToSinks(LevelDebug, msg, fields)
}

// Info logs an info message.
func (l *logger) Info(msg string, fields ...Field) {
	event := l.zl.Info()
	event = addFields(event, fields)
	event.Msg(msg)

	l.sendToSinks(LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *logger) Warn(msg string, fields ...Field) {
	event := l.zl.Warn()
	event = addFields(event, fields)
	event.Msg(msg)

	l.sendToSinks(LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *logger) Error(msg string, fields ...Field) {
	event := l.zl.Error()
	event = addFields(event, fields)
	event.Msg(msg)

	l.sendToSinks(LevelError, msg, fields)
}

// With returns a new logger with additional fields.
func (l *logger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = addFieldToContext(ctx, f)
	}
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &logger{
		zl:          ctx.Logger(),
		serviceName: l.serviceName,
		sinks:       l.sinks,
		bound:       bound,
	}
}

// WithContext returns a new logger that includes run information from context.
func (l *logger) WithContext(ctx context.Context) Logger {
	var fields []Field
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		fields = append(fields, F(string(RunIDKey), runID))
	}
	if file, ok := ctx.Value(FileKey).(string); ok && file != "" {
		fields = append(fields, F(string(FileKey), file))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// WithSink returns a new logger that also writes to sink.
func (l *logger) WithSink(sink Sink) Logger {
	sinks := make([]Sink, 0, len(l.sinks)+1)
	sinks = append(sinks, l.sinks...)
	sinks = append(sinks, sink)
	return &logger{
		zl:          l.zl,
		serviceName: l.serviceName,
		sinks:       sinks,
		bound:       l.bound,
	}
}

// addFields adds multiple fields to a zerolog event.
func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			event = event.Str(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		case float64:
			event = event.Float64(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case error:
			event = event.Err(v)
		case time.Duration:
			event = event.Dur(f.Key, v)
		case time.Time:
			event = event.Time(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	return event
}

// addFieldToContext adds a field to a zerolog context.
func addFieldToContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case float64:
		return ctx.Float64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case error:
		return ctx.Err(v)
	case time.Duration:
		return ctx.Dur(f.Key, v)
	case time.Time:
		return ctx.Time(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

// sendToSinks sends a log entry to all configured sinks.
func (l *logger) sendToSinks(level Level, msg string, fields []Field) {
	if len(l.sinks) == 0 {
		return
	}

	fieldMap := make(map[string]string, len(l.bound)+len(fields))
	for _, f := range l.bound {
		fieldMap[f.Key] = fmt.Sprint(f.Value)
	}
	for _, f := range fields {
		fieldMap[f.Key] = fmt.Sprint(f.Value)
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Service:   l.serviceName,
		Message:   msg,
		Fields:    fieldMap,
	}

	for _, sink := range l.sinks {
		sink.Write(entry)
	}
}

// Global provides a package-level logger for convenience.
// Initialize with SetGlobal() before use.
var global Logger

// SetGlobal sets the global logger instance.
func SetGlobal(l Logger) {
	global = l
}

// MustGlobal returns the global logger, initializing with defaults if not set.
func MustGlobal() Logger {
	if global == nil {
		global = NewLogger(DefaultConfig())
	}
	return global
}

// nopLogger is a logger that discards all output.
type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }
func (n *nopLogger) WithSink(sink Sink) Logger              { return n }
func (n *nopLogger) Zerolog() zerolog.Logger                { return zerolog.Nop() }

// NewNopLogger returns a logger that discards all output.
// Useful for testing when you don't want log noise.
func NewNopLogger() Logger {
	return &nopLogger{}
}
