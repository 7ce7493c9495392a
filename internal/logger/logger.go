package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the default logger for the polling service. It falls
// back to a no-op logger when construction fails, so callers can always
// log unconditionally.
func NewLogger() *zap.Logger {
	logger, err := NewProductionLogger()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewLoggerWithDebug creates a debug-level logger when verbose diagnostics
// are enabled, the production logger otherwise.
func NewLoggerWithDebug(debug bool) *zap.Logger {
	if !debug {
		return NewLogger()
	}
	logger, err := NewDevelopmentLogger()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewProductionLogger creates a JSON logger for long-running deployments.
// Sampling is disabled: a poll loop logs once per interval, and dropped
// entries would leave gaps exactly where a stalled job needs diagnosing.
func NewProductionLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Sampling = nil
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build production logger: %w", err)
	}
	return logger, nil
}

// NewDevelopmentLogger creates a console logger with debug level enabled,
// used when debug_mode is set.
func NewDevelopmentLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build development logger: %w", err)
	}
	return logger, nil
}
