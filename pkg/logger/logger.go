// Package logger holds the process-wide zap logger.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger. It discards everything until Init runs, so
// packages and tests can log unconditionally.
var Log = zap.NewNop()

// Config holds logger configuration
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Init replaces the global logger according to cfg
func Init(cfg *Config) error {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	if cfg.Output == "file" && cfg.FilePath != "" {
		zapConfig.OutputPaths = []string{cfg.FilePath}
		zapConfig.ErrorOutputPaths = []string{cfg.FilePath}
	}

	built, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	Log = built
	return nil
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	roomIDKey    contextKey = "room_id"
)

// WithRequestID tags ctx with the HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRoomID tags ctx with the media room it serves
func WithRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, roomIDKey, roomID)
}

// FromContext returns the global logger with the request and room fields found in ctx
func FromContext(ctx context.Context) *zap.Logger {
	l := Log
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		l = l.With(zap.String("request_id", requestID))
	}
	if roomID, ok := ctx.Value(roomIDKey).(string); ok {
		l = l.With(zap.String("room_id", roomID))
	}
	return l
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Log.With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Log.Sync()
}
