package logger

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mytradingsignal/internal/trace"
)

var (
	// Global logger instance; a no-op until Init is called so packages can log from tests.
	globalLogger = zap.NewNop().Sugar()
	// Whether detailed logging is enabled
	detailedLogging bool
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or console
	DetailedLogging bool   // Enable debug logs with caller information
}

// Init initializes the global logger based on environment variables
func Init() error {
	return InitWithConfig(LoadConfigFromEnv())
}

// LoadConfigFromEnv loads logging configuration from environment variables
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
	}
}

// InitWithConfig initializes the logger with specific configuration
func InitWithConfig(config LogConfig) error {
	detailedLogging = config.DetailedLogging

	zc := zap.NewProductionConfig()
	if strings.EqualFold(config.Format, "console") || strings.EqualFold(config.Format, "text") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(parseLogLevel(config.Level))
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Caller is added manually in logWithTrace so wrappers report the real call site.
	zc.DisableCaller = true
	zc.DisableStacktrace = true

	l, err := zc.Build()
	if err != nil {
		return err
	}
	globalLogger = l.Sugar()
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = globalLogger.Sync()
}

// parseLogLevel converts string log level to a zap level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, zapcore.DebugLevel, msg, 2, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, zapcore.InfoLevel, msg, 2, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, zapcore.WarnLevel, msg, 2, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, zapcore.ErrorLevel, msg, 2, args...)
}

// ErrorWithErr logs an error message with an error object and marks the active span.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	logWithTrace(ctx, zapcore.ErrorLevel, msg, 2, append([]any{"error", err}, args...)...)
}

// DebugSkip is Debug for wrappers; skip counts extra frames above the caller.
func DebugSkip(ctx context.Context, skip int, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, zapcore.DebugLevel, msg, 2+skip, args...)
}

// InfoSkip is Info for wrappers.
func InfoSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, zapcore.InfoLevel, msg, 2+skip, args...)
}

// WarnSkip is Warn for wrappers.
func WarnSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, zapcore.WarnLevel, msg, 2+skip, args...)
}

// ErrorWithErrSkip is ErrorWithErr for wrappers.
func ErrorWithErrSkip(ctx context.Context, skip int, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	logWithTrace(ctx, zapcore.ErrorLevel, msg, 2+skip, append([]any{"error", err}, args...)...)
}

func recordSpanError(ctx context.Context, err error) {
	if err == nil || !trace.Enabled() {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// logWithTrace logs a message with trace ID and span ID if available
// skip parameter indicates how many stack frames to skip to get the actual caller
func logWithTrace(ctx context.Context, level zapcore.Level, msg string, skip int, args ...any) {
	if traceID, spanID, ok := trace.GetTraceFields(ctx); ok {
		args = append([]any{"trace_id", traceID, "span_id", spanID}, args...)
	}

	if detailedLogging {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", map[string]any{
					"function": fn.Name(),
					"file":     file,
					"line":     line,
				})
			}
		}
	}

	globalLogger.Logw(level, msg, args...)
}

// OperationTimer helps measure operation duration with OpenTelemetry spans
type OperationTimer struct {
	ctx    context.Context
	span   oteltrace.Span
	start  time.Time
	fields []any
}

// StartOperation starts timing an operation with an OpenTelemetry span
func StartOperation(ctx context.Context, operation string, fields ...any) *OperationTimer {
	ctx, span := trace.StartSpan(ctx, operation)
	span.SetAttributes(toAttributes(fields)...)

	fields = append([]any{"operation", operation}, fields...)
	if detailedLogging {
		logWithTrace(ctx, zapcore.DebugLevel, "Operation started", 2, fields...)
	}

	return &OperationTimer{
		ctx:    ctx,
		span:   span,
		start:  time.Now(),
		fields: fields,
	}
}

// End completes the operation timer and logs the duration
func (ot *OperationTimer) End(additionalFields ...any) {
	duration := time.Since(ot.start)

	ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
	ot.span.SetAttributes(toAttributes(additionalFields)...)
	ot.span.SetStatus(codes.Ok, "completed")
	ot.span.End()

	if detailedLogging {
		fields := append(append([]any{}, ot.fields...), "duration_ms", duration.Milliseconds())
		logWithTrace(ot.ctx, zapcore.DebugLevel, "Operation completed", 2, append(fields, additionalFields...)...)
	}
}

// EndWithError completes the operation timer with an error
func (ot *OperationTimer) EndWithError(err error, additionalFields ...any) {
	duration := time.Since(ot.start)

	ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
	ot.span.RecordError(err)
	ot.span.SetStatus(codes.Error, err.Error())
	ot.span.End()

	fields := append(append([]any{}, ot.fields...), "duration_ms", duration.Milliseconds(), "error", err)
	logWithTrace(ot.ctx, zapcore.ErrorLevel, "Operation failed", 2, append(fields, additionalFields...)...)
}

// GetContext returns the context with the span
func (ot *OperationTimer) GetContext() context.Context {
	return ot.ctx
}

func toAttributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		}
	}
	return attrs
}

// Outlook logs an aggregated outlook (always logged regardless of level)
func Outlook(ctx context.Context, symbol, direction string, confidence float64, risk string, fields ...any) {
	if trace.Enabled() {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("outlook_update", oteltrace.WithAttributes(
				attribute.String("symbol", symbol),
				attribute.String("direction", direction),
				attribute.Float64("confidence", confidence),
				attribute.String("risk", risk),
			))
		}
	}

	allFields := append([]any{
		"type", "OUTLOOK",
		"symbol", symbol,
		"direction", direction,
		"confidence", confidence,
		"risk", risk,
	}, fields...)
	logWithTrace(ctx, zapcore.InfoLevel, "Outlook updated", 2, allFields...)
}

// Connection logs a connection state transition
func Connection(ctx context.Context, from, to, reason string, fields ...any) {
	if trace.Enabled() {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("connection_transition", oteltrace.WithAttributes(
				attribute.String("from", from),
				attribute.String("to", to),
			))
		}
	}

	allFields := append([]any{
		"type", "CONNECTION",
		"from", from,
		"to", to,
		"reason", reason,
	}, fields...)
	logWithTrace(ctx, zapcore.WarnLevel, "Connection state changed", 2, allFields...)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	return detailedLogging
}
