package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

var (
	baseMu     sync.RWMutex
	baseLogger = newZapLogger(os.Stderr, LogLevelInfo, "json")
)

// LogOptions configures the process-wide logger
type LogOptions struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// ConfigureLogging replaces the process-wide logger used by NewStructuredLogger.
func ConfigureLogging(opts LogOptions) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	SetBaseLogger(newZapLogger(out, ParseLogLevel(opts.Level), opts.Format))
}

// SetBaseLogger sets the zap logger backing new structured loggers. It is a
// hook for tests and for callers that already own a zap logger.
func SetBaseLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	baseLogger = l
	baseMu.Unlock()
}

// BaseLogger returns the process-wide zap logger
func BaseLogger() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger
}

// ParseLogLevel maps a config level name to a LogLevel, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newZapLogger(w io.Writer, level LogLevel, format string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.LevelKey = "severity"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var enc zapcore.Encoder
	if format == "console" || format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level.zapLevel()))
	return zap.New(core)
}

// StructuredLogger provides structured logging with trace correlation
type StructuredLogger struct {
	logger    *zap.Logger
	component string
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(component string) *StructuredLogger {
	return &StructuredLogger{
		logger:    BaseLogger().With(zap.String("component", component)),
		component: component,
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *StructuredLogger {
	return &StructuredLogger{logger: zap.NewNop(), component: "nop"}
}

// extractTraceInfo extracts trace and span IDs from context
func extractTraceInfo(ctx context.Context) (traceID, spanID string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		traceID = spanCtx.TraceID().String()
		spanID = spanCtx.SpanID().String()
	}
	return traceID, spanID
}

func (l *StructuredLogger) fields(ctx context.Context, attrs map[string]interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(attrs)+2)
	traceID, spanID := extractTraceInfo(ctx)
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID), zap.String("span_id", spanID))
	}
	for k, v := range attrs {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func firstAttrs(attrs []map[string]interface{}) map[string]interface{} {
	if len(attrs) > 0 {
		return attrs[0]
	}
	return nil
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.logger.Debug(message, l.fields(ctx, firstAttrs(attrs))...)
}

// Info logs an info message
func (l *StructuredLogger) Info(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.logger.Info(message, l.fields(ctx, firstAttrs(attrs))...)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(ctx context.Context, message string, attrs ...map[string]interface{}) {
	l.logger.Warn(message, l.fields(ctx, firstAttrs(attrs))...)
}

// Error logs an error message
func (l *StructuredLogger) Error(ctx context.Context, message string, err error, attrs ...map[string]interface{}) {
	fields := l.fields(ctx, firstAttrs(attrs))
	if err != nil {
		fields = append(fields, zap.String("error", err.Error()))
	}
	l.logger.Error(message, fields...)
}

// WithComponent creates a new logger with a different component name
func (l *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		logger:    BaseLogger().With(zap.String("component", component)),
		component: component,
	}
}

// Sync flushes buffered entries
func (l *StructuredLogger) Sync() error {
	if err := l.logger.Sync(); err != nil {
		// stderr and stdout return EINVAL on some platforms
		if strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl") {
			return nil
		}
		return fmt.Errorf("sync logger: %w", err)
	}
	return nil
}

// Logger interface for dependency injection
type Logger interface {
	Debug(ctx context.Context, message string, attrs ...map[string]interface{})
	Info(ctx context.Context, message string, attrs ...map[string]interface{})
	Warn(ctx context.Context, message string, attrs ...map[string]interface{})
	Error(ctx context.Context, message string, err error, attrs ...map[string]interface{})
}
