// Package log provides structured logging with job context.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with job context.
// Every entry carries the job identity fields so one job's attempts
// can be correlated across redeliveries.
type Logger struct {
	zap *zap.Logger
}

// NewLogger creates a logger scoped to one job execution.
// Output defaults to os.Stderr.
func NewLogger(idempotencyKey, chatIdentity string, attempt int) *Logger {
	return newLoggerWithWriter(idempotencyKey, chatIdentity, attempt, os.Stderr)
}

// NewProcessLogger creates a logger without job context, for process
// lifecycle events (startup, shutdown, consumer loop).
func NewProcessLogger(component string) *Logger {
	core := newCore(os.Stderr)
	return &Logger{zap: zap.New(core).With(zap.String("component", component))}
}

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

func newLoggerWithWriter(idempotencyKey, chatIdentity string, attempt int, w io.Writer) *Logger {
	contextFields := []zap.Field{
		zap.String("idempotency_key", idempotencyKey),
		zap.String("chat_identity", chatIdentity),
		zap.Int("attempt", attempt),
	}
	zapLogger := zap.New(newCore(w)).With(contextFields...)
	return &Logger{zap: zapLogger}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}
