package gobayeux

import "github.com/sirupsen/logrus"

// Logger defines the logging interface gobayeux leverages throughout the
// dispatcher, transports, and client. It is deliberately smaller than
// logrus.FieldLogger so that any reasonable logging library can satisfy
// it with a thin adapter, the way wrappedFieldLogger does below.
type Logger interface {
	// Debug logs a message and structured key/value pairs at debug level.
	Debug(msg string, args ...any)
	// Info logs a message and structured key/value pairs at info level.
	Info(msg string, args ...any)
	// Warn logs a message and structured key/value pairs at warn level.
	Warn(msg string, args ...any)
	// Error logs a message and structured key/value pairs at error level.
	Error(msg string, args ...any)
	// WithError returns a Logger that attaches err to every subsequent
	// log call.
	WithError(err error) Logger
	// WithField returns a Logger that attaches key/value to every
	// subsequent log call.
	WithField(key string, value any) Logger
}

type nullLogger struct{}

func (*nullLogger) Debug(msg string, args ...any) {}
func (*nullLogger) Info(msg string, args ...any)  {}
func (*nullLogger) Warn(msg string, args ...any)  {}
func (*nullLogger) Error(msg string, args ...any) {}
func (l *nullLogger) WithError(error) Logger      { return l }
func (l *nullLogger) WithField(string, any) Logger { return l }

func newNullLogger() *nullLogger { return &nullLogger{} }

// wrappedFieldLogger adapts a logrus.FieldLogger to the Logger interface.
type wrappedFieldLogger struct {
	logrus.FieldLogger
}

func (w *wrappedFieldLogger) Debug(msg string, args ...any) {
	w.FieldLogger.Debug(append([]any{msg}, args...))
}

func (w *wrappedFieldLogger) Info(msg string, args ...any) {
	w.FieldLogger.Info(append([]any{msg}, args...))
}

func (w *wrappedFieldLogger) Warn(msg string, args ...any) {
	w.FieldLogger.Warn(append([]any{msg}, args...))
}

func (w *wrappedFieldLogger) Error(msg string, args ...any) {
	w.FieldLogger.Error(append([]any{msg}, args...))
}

func (w *wrappedFieldLogger) WithError(err error) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithError(err)}
}

func (w *wrappedFieldLogger) WithField(key string, value any) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithField(key, value)}
}
