package gobayeux

import "fmt"

// Kind classifies an error by category: network, protocol,
// authentication, subscription/publication, timeout, or an HTTP status
// passthrough.
type Kind string

const (
	// KindNetwork covers transport connect/send failures, no transport
	// selected, and malformed server responses.
	KindNetwork Kind = "network"
	// KindProtocol covers frame parse failures and invalid channel names
	// at the client boundary.
	KindProtocol Kind = "protocol"
	// KindAuthentication covers server rejection of credentials.
	KindAuthentication Kind = "authentication"
	// KindSubscription covers server rejection of /meta/subscribe,
	// /meta/unsubscribe, or a publish.
	KindSubscription Kind = "subscription"
	// KindHTTP covers non-200 HTTP responses passed through verbatim.
	KindHTTP Kind = "http"
	// KindTimeout covers an awaiter expiring before a matching response
	// arrives.
	KindTimeout Kind = "timeout"
)

// sentinel is a string-based error, used for simple precondition failures
// that carry no additional context.
type sentinel string

func (s sentinel) Error() string { return string(s) }

// Kind reports this error's taxonomy classification.
func (s sentinel) Kind() Kind {
	if s == ErrNoTransport {
		return KindNetwork
	}
	return KindProtocol
}

const (
	// ErrClientNotConnected is returned when an operation requires a
	// connected client but the client is not connected.
	ErrClientNotConnected = sentinel("client not connected to server")

	// ErrTooManyMessages is returned when more than one message comes
	// back in a handshake response.
	ErrTooManyMessages = sentinel("more messages than expected in handshake response")

	// ErrBadChannel is returned when a handshake response arrives on the
	// wrong channel.
	ErrBadChannel = sentinel("handshake responses must come back via the /meta/handshake channel")

	// ErrFailedToConnect is a general connect failure.
	ErrFailedToConnect = sentinel("connect request was not successful")

	// ErrNoSupportedConnectionTypes is returned when no connection types
	// were provided to a handshake request.
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned when a handshake request has no version.
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when a request needs a clientID that
	// hasn't been set.
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned when a connect request has no
	// connection type.
	ErrMissingConnectionType = sentinel("missing connectionType value")

	// ErrNoTransport is returned when no transport has been selected or
	// none are supported in the current environment.
	ErrNoTransport = sentinel("no transport available")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = sentinel("client is closed")

	// ErrPublicationTerminal is returned when a Publication is marked
	// successful or failed a second time.
	ErrPublicationTerminal = sentinel("publication already in a terminal state")
)

// ConnectionFailedError is returned whenever Connect fails.
type ConnectionFailedError struct{ Err error }

func (e ConnectionFailedError) Error() string  { return fmt.Sprintf("connection failed (%s)", e.Err) }
func (e ConnectionFailedError) Unwrap() error  { return e.Err }
func (e ConnectionFailedError) Kind() Kind     { return KindNetwork }

// HandshakeFailedError is returned whenever the handshake fails.
type HandshakeFailedError struct{ Err error }

func (e HandshakeFailedError) Error() string { return e.Err.Error() }
func (e HandshakeFailedError) Unwrap() error { return e.Err }
func (e HandshakeFailedError) Kind() Kind    { return KindNetwork }

func newHandshakeError(msg string) HandshakeFailedError {
	return HandshakeFailedError{fmt.Errorf("handshake was not successful: %s", msg)}
}

// SubscriptionFailedError is returned for any failure of Subscribe.
type SubscriptionFailedError struct {
	Channels []Channel
	Err      error
}

func (e SubscriptionFailedError) Error() string {
	return fmt.Sprintf("unable to subscribe to channels: %s", e.Err)
}
func (e SubscriptionFailedError) Unwrap() error { return e.Err }
func (e SubscriptionFailedError) Kind() Kind    { return KindSubscription }

// UnsubscribeFailedError is returned for any failure of Unsubscribe.
type UnsubscribeFailedError struct {
	Channels []Channel
	Err      error
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unable to unsubscribe from channels: %s", e.Err)
}
func (e UnsubscribeFailedError) Unwrap() error { return e.Err }
func (e UnsubscribeFailedError) Kind() Kind    { return KindSubscription }

// PublicationFailedError is returned when a publish is rejected by the
// server. It is carried on Publication.Err, not raised to Client.Publish
// callers (spec: publish never raises on a Bayeux-level failure).
type PublicationFailedError struct {
	Channel Channel
	Err     error
}

func (e PublicationFailedError) Error() string {
	return fmt.Sprintf("publish to %q failed (%s)", e.Channel, e.Err)
}
func (e PublicationFailedError) Unwrap() error { return e.Err }
func (e PublicationFailedError) Kind() Kind    { return KindSubscription }

// DisconnectFailedError is returned when Disconnect fails.
type DisconnectFailedError struct{ Err error }

func (e DisconnectFailedError) Error() string {
	if e.Err == nil {
		return "unable to disconnect from Bayeux server"
	}
	return fmt.Sprintf("unable to disconnect from Bayeux server (%s)", e.Err)
}
func (e DisconnectFailedError) Unwrap() error { return e.Err }
func (e DisconnectFailedError) Kind() Kind    { return KindNetwork }

// AlreadyRegisteredError signals that an Extension is already installed.
type AlreadyRegisteredError struct{ Extension Extension }

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension already registered: %v", e.Extension)
}
func (e AlreadyRegisteredError) Kind() Kind { return KindProtocol }

// BadResponseError is returned when the HTTP transport gets a non-200
// response from the server.
type BadResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e BadResponseError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("expected 200 response from bayeux server, got %d with status %q", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("expected 200 response from bayeux server, got %d with status %q: %s", e.StatusCode, e.Status, e.Body)
}
func (e BadResponseError) Kind() Kind { return KindHTTP }

// FromHTTP builds a BadResponseError from a status code and response
// body.
func FromHTTP(statusCode int, status string, body []byte) BadResponseError {
	return BadResponseError{StatusCode: statusCode, Status: status, Body: body}
}

// BadConnectionTypeError is returned when an unrecognized connection type
// is requested.
type BadConnectionTypeError struct{ ConnectionType string }

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("%q is not a valid connection type", e.ConnectionType)
}
func (e BadConnectionTypeError) Kind() Kind { return KindProtocol }

// BadConnectionVersionError is returned when a malformed version string is
// supplied.
type BadConnectionVersionError struct{ Version string }

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("version %q is invalid for Bayeux protocol", e.Version)
}
func (e BadConnectionVersionError) Kind() Kind { return KindProtocol }

// InvalidChannelError is the result of a failure to validate a channel
// name or pattern.
type InvalidChannelError struct{ Channel Channel }

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %q appears to not be a valid channel", e.Channel)
}
func (e InvalidChannelError) Kind() Kind { return KindProtocol }

// ErrEmptySlice is returned when an empty slice is unexpected.
type ErrEmptySlice string

func (e ErrEmptySlice) Error() string { return fmt.Sprintf("no %s provided", string(e)) }
func (e ErrEmptySlice) Kind() Kind    { return KindProtocol }

// ErrMessageUnparsable is returned when a Bayeux error string fails to
// parse.
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return fmt.Sprintf("error message not parseable: %s", string(e))
}
func (e ErrMessageUnparsable) Kind() Kind { return KindProtocol }

// BadStateError is returned when a state machine transition is invalid
// for the machine's current state.
type BadStateError struct {
	Current State
	From    State
	To      State
	msg     string
}

func (e BadStateError) Error() string {
	return fmt.Sprintf("%s (current: %s, from: %s, to: %s)", e.msg, e.Current, e.From, e.To)
}
func (e BadStateError) Kind() Kind { return KindProtocol }

func newBadTransitionError(msg string, current, from, to State) BadStateError {
	return BadStateError{Current: current, From: from, To: to, msg: msg}
}

// TimeoutError is returned when an awaiter expires before a matching
// response arrives.
type TimeoutError struct {
	// ID is the message id that was never answered.
	ID string
}

func (e TimeoutError) Error() string { return fmt.Sprintf("Message timeout: %s", e.ID) }
func (e TimeoutError) Kind() Kind    { return KindTimeout }
func (e TimeoutError) Code() int     { return 408 }

// NetworkError wraps a low-level transport failure (connect, send, parse)
// as a taxonomy-classified error.
type NetworkError struct {
	Err     error
	Message string
}

func (e NetworkError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Err)
}
func (e NetworkError) Unwrap() error { return e.Err }
func (e NetworkError) Kind() Kind    { return KindNetwork }
func (e NetworkError) Code() int     { return 0 }

func newNetworkError(message string, err error) NetworkError {
	return NetworkError{Message: message, Err: err}
}
