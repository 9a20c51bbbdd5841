//go:build go1.21
// +build go1.21

package gobayeux

import "log/slog"

// wrappedSlog adapts a *slog.Logger to the Logger interface.
type wrappedSlog struct {
	*slog.Logger
}

func (w *wrappedSlog) WithError(err error) Logger {
	return w.WithField("error", err)
}

func (w *wrappedSlog) WithField(key string, value any) Logger {
	return &wrappedSlog{w.With(slog.Any(key, value))}
}

// WithSlogLogger configures a Client to log through the standard
// library's log/slog package instead of logrus.
func WithSlogLogger(logger *slog.Logger) Option {
	return func(options *Options) {
		options.Logger = &wrappedSlog{logger}
	}
}
