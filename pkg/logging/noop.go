package logging

// NoOpLogger discards everything.
type NoOpLogger struct{}

var _ Logger = (*NoOpLogger)(nil)

func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, keysAndValues ...any) {}
func (l *NoOpLogger) Info(msg string, keysAndValues ...any)  {}
func (l *NoOpLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *NoOpLogger) Error(msg string, keysAndValues ...any) {}
func (l *NoOpLogger) Fatal(msg string, keysAndValues ...any) {}

func (l *NoOpLogger) Debugf(template string, args ...any) {}
func (l *NoOpLogger) Infof(template string, args ...any)  {}
func (l *NoOpLogger) Warnf(template string, args ...any)  {}
func (l *NoOpLogger) Errorf(template string, args ...any) {}
func (l *NoOpLogger) Fatalf(template string, args ...any) {}

func (l *NoOpLogger) With(keysAndValues ...any) Logger {
	return l
}
