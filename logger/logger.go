package logger

// Logger is the structured logging interface used across the engine.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation ID for audit entries and logs.
type TraceIDFunc func() string // It should be cheap and safe for concurrent calls.
