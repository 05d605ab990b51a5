package logging

// NoOpLogger is a logger that discards all logs (useful for testing).
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// Debug logs a debug message (no-op).
func (n *NoOpLogger) Debug(msg string, fields ...interface{}) {}

// Info logs an info message (no-op).
func (n *NoOpLogger) Info(msg string, fields ...interface{}) {}

// Warn logs a warning message (no-op).
func (n *NoOpLogger) Warn(msg string, fields ...interface{}) {}

// Error logs an error message (no-op).
func (n *NoOpLogger) Error(msg string, fields ...interface{}) {}

// WithTraceID returns the logger unchanged.
func (n *NoOpLogger) WithTraceID(traceID string) Logger { return n }

// WithComponent returns the logger unchanged.
func (n *NoOpLogger) WithComponent(component string) Logger { return n }
