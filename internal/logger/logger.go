// Package logger wraps zap.SugaredLogger. Grounded on
// vidinfra-flexprice/internal/logger/logger.go.
package logger

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger so call sites read `logger.Infow(...)`
// without importing zap directly.
type Logger struct {
	*zap.SugaredLogger
}

// Level mirrors the subset of zap levels the configuration accepts.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// New builds a production-style JSON logger at the given level. Construction
// happens once at process start and the *Logger is threaded through the
// dependency graph — business logic never reaches for an ambient global.
func New(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithContext attaches tenant/request/job correlation fields pulled off the
// context, so every scheduler tick or worker poll logs pre-scoped.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(
			"tenant_id", types.GetTenantID(ctx),
			"request_id", types.GetRequestID(ctx),
			"job_id", types.GetJobID(ctx),
		),
	}
}

// NewTest builds a no-op logger suitable for unit tests.
func NewTest() *Logger {
	l, _ := New(LevelError)
	return l
}
