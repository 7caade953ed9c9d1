// Package observability wires structured logging, Cloud Trace propagation,
// and request instrumentation for the HTTP surface.
package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orderlane/api/internal/platform/requestctx"
)

const levelEnvVar = "LOG_LEVEL"

// NewLogger builds the process-wide JSON logger. The level is taken from
// LOG_LEVEL and falls back to info when unset or unparseable.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.Config{
		Level:             logLevelFromEnv(),
		Encoding:          "json",
		EncoderConfig:     jsonEncoderConfig(),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

func logLevelFromEnv() zap.AtomicLevel {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(levelEnvVar)))
	level := zap.NewAtomicLevel()
	if raw == "" || level.UnmarshalText([]byte(raw)) != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	return level
}

// jsonEncoderConfig emits Cloud Logging friendly keys: severity instead of
// level, timestamp in RFC3339Nano, upper-cased level names.
func jsonEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:    "message",
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(l.String()))
		},
	}
}

// WithLogger stores the logger on the context for downstream handlers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the request-scoped logger, or a no-op logger when none
// was injected.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WithRequestFields attaches request-scoped fields to the logger.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}

// PrintfAdapter exposes a zap logger through a Printf-shaped method for
// libraries that only accept printf-style loggers.
type PrintfAdapter struct {
	sugar *zap.SugaredLogger
}

// NewPrintfAdapter wraps logger; a nil logger yields a silent adapter.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{sugar: logger.Sugar()}
}

// Printf logs the formatted message at info level.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.sugar.Infof(format, args...)
}
