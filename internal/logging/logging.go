package logging

import (
	"fmt"
	"strings"

	temporallog "go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. JSON output uses the production encoder, otherwise
// a console encoder is used.
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(orDefault(level, "info"))))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	if !json {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.DisableStacktrace = lvl > zapcore.DebugLevel
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// TemporalLogger adapts a zap logger to the Temporal SDK logger interface so the
// client, worker and workflow code log through the same sink.
type TemporalLogger struct {
	logger *zap.SugaredLogger
}

var (
	_ temporallog.Logger     = (*TemporalLogger)(nil)
	_ temporallog.WithLogger = (*TemporalLogger)(nil)
)

func NewTemporalLogger(logger *zap.Logger) *TemporalLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemporalLogger{logger: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debugw(msg, keyvals...)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Infow(msg, keyvals...)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warnw(msg, keyvals...)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Errorw(msg, keyvals...)
}

func (l *TemporalLogger) With(keyvals ...interface{}) temporallog.Logger {
	return &TemporalLogger{logger: l.logger.With(keyvals...)}
}
