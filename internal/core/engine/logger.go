package engine

import "go.uber.org/zap"

// Logger is the subset of the application logger used by core components.
// Both *zap.Logger and the gofulmen logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...zap.Field) {}
func (nopLogger) Info(string, ...zap.Field)  {}
func (nopLogger) Warn(string, ...zap.Field)  {}

// LoggerOrNop returns l, or a logger that discards everything when l is nil.
func LoggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
