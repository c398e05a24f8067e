package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns string representation of log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value onto a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Fields represents structured log fields
type Fields map[string]interface{}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	officeCodeKey
)

// WithRequestID stores a request id that every log entry written with the
// returned context will carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithOfficeCode tags the context with the forecast office being served.
func WithOfficeCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, officeCodeKey, code)
}

// StructuredLogger provides structured logging with context on top of slog
type StructuredLogger struct {
	mu       sync.Mutex
	level    *slog.LevelVar
	format   string
	service  string
	version  string
	hostname string
	attrs    []any
	logger   *slog.Logger
}

// NewStructuredLogger creates a new structured logger writing JSON to stdout.
func NewStructuredLogger(service, version string, level LogLevel) *StructuredLogger {
	hostname, _ := os.Hostname()

	l := &StructuredLogger{
		level:    new(slog.LevelVar),
		format:   "json",
		service:  service,
		version:  version,
		hostname: hostname,
	}
	l.level.Set(level.slogLevel())
	l.logger = l.build(os.Stdout)
	return l
}

// NewDiscardLogger returns a logger that drops everything; used by tests.
func NewDiscardLogger() *StructuredLogger {
	l := NewStructuredLogger("test", "0.0.0", ErrorLevel)
	l.SetOutput(io.Discard)
	return l
}

func (l *StructuredLogger) build(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level}
	var h slog.Handler
	if l.format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With(
		"service", l.service,
		"version", l.version,
		"hostname", l.hostname,
	).With(l.attrs...)
}

// SetOutput sets the output destination for logs
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = l.build(w)
}

// SetFormat switches between "json" and "text" output on w.
func (l *StructuredLogger) SetFormat(format string, w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.logger = l.build(w)
}

// With returns a child logger that adds fields to every entry.
func (l *StructuredLogger) With(fields Fields) *StructuredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()

	attrs := append([]any{}, l.attrs...)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return &StructuredLogger{
		level:    l.level,
		format:   l.format,
		service:  l.service,
		version:  l.version,
		hostname: l.hostname,
		attrs:    attrs,
		logger:   l.logger.With(flatten(fields)...),
	}
}

// Debug logs a debug message with structured fields
func (l *StructuredLogger) Debug(ctx context.Context, message string, fields Fields) {
	l.log(ctx, DebugLevel, message, fields, nil)
}

// Info logs an info message with structured fields
func (l *StructuredLogger) Info(ctx context.Context, message string, fields Fields) {
	l.log(ctx, InfoLevel, message, fields, nil)
}

// Warn logs a warning message with structured fields
func (l *StructuredLogger) Warn(ctx context.Context, message string, fields Fields) {
	l.log(ctx, WarnLevel, message, fields, nil)
}

// Error logs an error message with structured fields and error details
func (l *StructuredLogger) Error(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, ErrorLevel, message, fields, err)
}

// Fatal logs a fatal message and exits the program
func (l *StructuredLogger) Fatal(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, FatalLevel, message, fields, err)
	os.Exit(1)
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, message string, fields Fields, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level.slogLevel()) {
		return
	}

	args := flatten(fields)
	if id := RequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if code, ok := ctx.Value(officeCodeKey).(string); ok {
		args = append(args, "office_code", code)
	}

	// Caller information for error and fatal levels
	if level >= ErrorLevel {
		if pc, file, line, ok := runtime.Caller(2); ok {
			args = append(args, "file", file, "line", line)
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "function", fn.Name())
			}
		}
		if err != nil {
			args = append(args, "error", err.Error())
		}
		if level == FatalLevel {
			args = append(args, "fatal", true)
		}
	}

	l.mu.Lock()
	logger := l.logger
	l.mu.Unlock()

	logger.Log(ctx, level.slogLevel(), message, args...)
}

func flatten(fields Fields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
