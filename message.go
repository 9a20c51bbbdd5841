package gobayeux

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Connection types a client or server may advertise support for. Only
// ConnectionTypeLongPolling and ConnectionTypeWebsocket are dialed
// automatically by this package; ConnectionTypeCallbackPolling is
// available via CallbackPollingTransport and an explicit SetTransport
// call, and ConnectionTypeIFrame is accepted in handshake negotiation
// only (no iframe transport is implemented here).
const (
	ConnectionTypeLongPolling     = "long-polling"
	ConnectionTypeCallbackPolling = "callback-polling"
	ConnectionTypeWebsocket       = "websocket"
	ConnectionTypeIFrame          = "iframe"
)

// BayeuxVersion is the protocol version this client speaks.
const BayeuxVersion = "1.0"

// Message represents a single Bayeux envelope, as sent or received over
// any transport.
//
// See also: https://docs.cometd.org/current/reference/#_messages
type Message struct {
	// Channel is the Channel this message was sent to or received on.
	Channel Channel `json:"channel"`
	// ID correlates a response to the request that produced it.
	ID string `json:"id,omitempty"`
	// ClientID identifies a particular session via a session id token.
	ClientID string `json:"clientId,omitempty"`
	// Data holds the opaque application payload of a broadcast message.
	// It is left undecoded so that arbitrary JSON values round-trip
	// without loss.
	Data json.RawMessage `json:"data,omitempty"`
	// Subscription is the channel or pattern named by a subscribe or
	// unsubscribe request or response.
	Subscription Channel `json:"subscription,omitempty"`
	// Successful indicates whether a request succeeded. Absent on
	// broadcast messages.
	Successful bool `json:"successful,omitempty"`
	// Error carries the Bayeux "code:params:message" error string when
	// Successful is false. See ParseError.
	Error string `json:"error,omitempty"`
	// Version is the protocol version, present on handshake requests and
	// responses.
	Version string `json:"version,omitempty"`
	// MinimumVersion is the oldest protocol version the client will
	// accept, present only on handshake requests.
	MinimumVersion string `json:"minimumVersion,omitempty"`
	// SupportedConnectionTypes lists the connection types a party is
	// willing to use, present on handshake requests and responses.
	SupportedConnectionTypes []string `json:"supportedConnectionTypes,omitempty"`
	// ConnectionType names the connection type a /meta/connect request is
	// using.
	ConnectionType string `json:"connectionType,omitempty"`
	// Advice carries server-supplied reconnection hints.
	Advice *Advice `json:"advice,omitempty"`
	// Ext is a free-form extension bag, mutated by the Extension
	// pipeline. Use GetExt to obtain a non-nil map for writing.
	Ext map[string]interface{} `json:"ext,omitempty"`
	// AuthSuccessful is set by some servers on handshake responses to
	// distinguish protocol-level success from authentication success.
	AuthSuccessful bool `json:"authSuccessful,omitempty"`
}

// GetExt returns m.Ext, allocating it first if it is nil and create is
// true. If create is false and m.Ext is nil, GetExt returns nil.
func (m *Message) GetExt(create bool) map[string]interface{} {
	if m.Ext == nil && create {
		m.Ext = make(map[string]interface{})
	}
	return m.Ext
}

// MessageError is the structured form of a Bayeux error string, of the
// shape "code:params:message" as described in
// https://docs.cometd.org/current/reference/#_code_error_code.
type MessageError struct {
	Code    int
	Args    []string
	Message string
}

// ParseError parses m.Error into a MessageError. It returns an error if
// m.Error is not of the "code:params:message" shape or the code segment
// is not an integer.
func (m Message) ParseError() (MessageError, error) {
	return parseMessageError(m.Error)
}

func parseMessageError(s string) (MessageError, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return MessageError{}, ErrMessageUnparsable(s)
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return MessageError{}, ErrMessageUnparsable(s)
	}
	args := strings.Split(parts[1], ",")
	return MessageError{Code: code, Args: args, Message: parts[2]}, nil
}

// Advice carries server-supplied hints about reconnection behavior,
// polling interval, and per-message timeout.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
type Advice struct {
	// Reconnect is one of "retry", "handshake", or "none".
	Reconnect string `json:"reconnect,omitempty"`
	// Interval is the number of milliseconds a client should wait before
	// the next /meta/connect.
	Interval int `json:"interval,omitempty"`
	// Timeout is the number of milliseconds a client should wait for a
	// response before considering a request to have failed.
	Timeout int `json:"timeout,omitempty"`
}

// DefaultAdvice is the advice in effect before any has been received from
// the server.
func DefaultAdvice() Advice {
	return Advice{Reconnect: "retry", Interval: 0, Timeout: 60000}
}

// ShouldHandshake reports whether the advice requires a fresh handshake
// before the next reconnect.
func (a Advice) ShouldHandshake() bool {
	return a.Reconnect == "handshake"
}

// ShouldReconnect reports whether the advice permits reconnection at all.
func (a Advice) ShouldReconnect() bool {
	return a.Reconnect != "none"
}

// Merge overlays the non-zero fields of other onto a, returning the
// result. A zero field in other leaves the field of a unchanged. The
// dispatcher passes the advice of each server response as other.
func (a Advice) Merge(other Advice) Advice {
	merged := a
	if other.Reconnect != "" {
		merged.Reconnect = other.Reconnect
	}
	if other.Interval != 0 {
		merged.Interval = other.Interval
	}
	if other.Timeout != 0 {
		merged.Timeout = other.Timeout
	}
	return merged
}

// cloneMessage deep-copies m so that extension pipelines and callbacks
// cannot mutate a shared original through their copy. The clone is
// structurally equal to the original and shares no mutable substructure.
func cloneMessage(m Message) Message {
	clone := m
	if m.Data != nil {
		clone.Data = append(json.RawMessage(nil), m.Data...)
	}
	if m.SupportedConnectionTypes != nil {
		clone.SupportedConnectionTypes = append([]string(nil), m.SupportedConnectionTypes...)
	}
	if m.Advice != nil {
		adviceCopy := *m.Advice
		clone.Advice = &adviceCopy
	}
	clone.Ext = cloneExt(m.Ext)
	return clone
}

// cloneExt deep-copies a JSON-object extension bag, recursing into nested
// maps and slices at any depth.
func cloneExt(ext map[string]interface{}) map[string]interface{} {
	if ext == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(ext))
	for k, v := range ext {
		clone[k] = cloneValue(v)
	}
	return clone
}

// cloneValue deep-copies a decoded JSON value held in an extension bag.
func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneExt(val)
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
