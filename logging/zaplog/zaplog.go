// Package zaplog adapts a zap logger to tram.Logger.
package zaplog

import (
	"github.com/AshkanYarmoradi/go-tram"
	"go.uber.org/zap"
)

// Ensure interface compliance at compile time
var _ tram.Logger = (*Logger)(nil)

// Logger writes tram log lines through a zap.SugaredLogger.
// Arguments are alternating key/value pairs.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New wraps logger. A nil logger yields zap.NewNop.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{sugar: logger.Sugar()}
}

// NewDevelopment returns a human-readable logger for examples and local runs.
func NewDevelopment() (*Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(logger), nil
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With returns a child logger carrying keysAndValues on every line.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
