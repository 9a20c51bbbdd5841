package gobayeux

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// IgnoreErrorFunc inspects an error from the dispatcher's background loop
// and reports whether it can be treated as non-fatal.
type IgnoreErrorFunc func(error) bool

// Options stores the configuration a Client is built with. Use the With*
// functions below to populate it rather than constructing it directly.
type Options struct {
	Logger         Logger
	HTTPClient     *http.Client
	HTTPTransport  http.RoundTripper
	Extension      Extension
	IgnoreError    IgnoreErrorFunc
	PreferredTransport string
	Timeout        time.Duration
}

// Option configures a Client constructed with NewClient.
type Option func(*Options)

// WithLogger installs a Logger directly.
func WithLogger(logger Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithFieldLogger adapts a logrus.FieldLogger (e.g. *logrus.Logger or the
// result of logrus.WithField) to Logger.
func WithFieldLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) { o.Logger = &wrappedFieldLogger{logger} }
}

// WithHTTPClient supplies a custom *http.Client for the HTTP long-polling
// and callback-polling transports.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HTTPClient = client }
}

// WithHTTPTransport supplies a custom http.RoundTripper, useful for TLS
// configuration, proxies, or request-decorating transports such as
// extensions/httpauth.StaticTokenTransport.
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(o *Options) { o.HTTPTransport = transport }
}

// WithExtension installs the single Extension slot at construction time.
// Equivalent to calling Client.SetExtension after NewClient.
func WithExtension(ext Extension) Option {
	return func(o *Options) { o.Extension = ext }
}

// WithIgnoreError supplies a function called whenever the dispatcher's
// background loop hits an error outside of a direct request/response
// call (e.g. a poll or heartbeat failure). If it returns true, the error
// is logged at debug level; otherwise it is logged as a warning. Neither
// outcome tears the session down. The default always returns false.
func WithIgnoreError(f IgnoreErrorFunc) Option {
	return func(o *Options) { o.IgnoreError = f }
}

// WithTransport names the connection type, e.g. ConnectionTypeWebsocket,
// that Connect selects for the handshake. If unset, Connect uses the
// first supported transport (HTTP long-polling).
func WithTransport(name string) Option {
	return func(o *Options) { o.PreferredTransport = name }
}

// WithTimeout overrides the default 30-second per-message response
// timeout applied to every registered transport.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func resolveOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	if options.Logger == nil {
		options.Logger = newNullLogger()
	}
	if options.IgnoreError == nil {
		options.IgnoreError = func(error) bool { return false }
	}
	if options.Timeout == 0 {
		options.Timeout = 30 * time.Second
	}
	return options
}
