package gobayeux

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Frame is a single decoded inbound unit handed from a Transport to
// whatever is consuming its Messages() stream: either a parsed Message,
// or, for a non-object payload, a synthetic wrapper carrying the raw
// decoded value under "data" and a "type" tag.
type Frame struct {
	Message Message
	// Raw is set instead of Message when the transport received a
	// decoded JSON value that was not an object; Message is then the
	// zero value and Wrapped reports this case.
	Raw     interface{}
	Wrapped bool
}

// ConnectionState is published on a Transport's States() stream whenever
// its connectedness changes.
type ConnectionState int

const (
	// TransportDisconnected indicates the transport is not connected.
	TransportDisconnected ConnectionState = iota
	// TransportConnected indicates the transport is connected.
	TransportConnected
)

// TransportStats is a point-in-time snapshot of a transport's bookkeeping
// counters, measured against the JSON-serialized form of messages.
type TransportStats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	Errors           uint64
	BytesSent        uint64
	BytesReceived    uint64
	ConnectTime      time.Time
	LastActivity     time.Time
}

// Transport is the abstract contract every concrete transport (HTTP
// long-polling, callback-polling, WebSocket) implements. Transports are a
// polymorphic capability set — concrete transports are value-equal only
// to themselves, never to one another, which is why Dispatcher compares
// them by identity (pointer) rather than by value.
type Transport interface {
	// Name identifies this transport's connection type, e.g.
	// ConnectionTypeLongPolling.
	Name() string
	// Supported reports whether this transport can be used in the
	// current environment.
	Supported() bool
	// Connected reports whether Connect has succeeded and Disconnect or
	// Close has not since been called.
	Connected() bool
	// Timeout is the duration Send/SendBatch will wait for a reply
	// before the caller should consider the request timed out.
	Timeout() time.Duration
	// SetTimeout updates Timeout.
	SetTimeout(time.Duration)

	// Messages streams every inbound Frame as it is decoded.
	Messages() <-chan Frame
	// States streams connectedness transitions.
	States() <-chan ConnectionState
	// Errors streams transport-level failures that do not by themselves
	// terminate the session (steady-state heartbeat/poll failures).
	Errors() <-chan error

	// Connect dials the given URL and performs whatever handshake the
	// transport needs to consider itself connected.
	Connect(ctx context.Context, url string, headers http.Header) error
	// Disconnect tears the connection down but leaves the transport
	// reusable via a further Connect.
	Disconnect() error
	// Send transmits a single envelope.
	Send(ctx context.Context, msg *Message) error
	// SendBatch transmits multiple envelopes as one unit where the
	// transport supports it.
	SendBatch(ctx context.Context, msgs []*Message) error
	// Close releases all resources, including timers and background
	// goroutines; Close implies Disconnect.
	Close() error

	// Statistics returns a snapshot of this transport's counters.
	Statistics() TransportStats
}

// baseTransport holds the bookkeeping and event plumbing shared by every
// concrete Transport implementation.
type baseTransport struct {
	mu      sync.Mutex
	stats   TransportStats
	timeout time.Duration

	messages *broadcaster[Frame]
	states   *broadcaster[ConnectionState]
	errs     *broadcaster[error]
}

func newBaseTransport(defaultTimeout time.Duration) baseTransport {
	return baseTransport{
		timeout:  defaultTimeout,
		messages: newBroadcaster[Frame](64),
		states:   newBroadcaster[ConnectionState](8),
		errs:     newBroadcaster[error](16),
	}
}

func (b *baseTransport) Timeout() time.Duration { return b.timeout }

func (b *baseTransport) SetTimeout(d time.Duration) { b.timeout = d }

func (b *baseTransport) Messages() <-chan Frame {
	ch, _ := b.messages.subscribe()
	return ch
}

func (b *baseTransport) States() <-chan ConnectionState {
	ch, _ := b.states.subscribe()
	return ch
}

func (b *baseTransport) Errors() <-chan error {
	ch, _ := b.errs.subscribe()
	return ch
}

func (b *baseTransport) Statistics() TransportStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *baseTransport) emitState(s ConnectionState) {
	b.mu.Lock()
	b.stats.LastActivity = time.Now()
	if s == TransportConnected {
		b.stats.ConnectTime = time.Now()
	}
	b.mu.Unlock()
	b.states.publish(s)
}

func (b *baseTransport) emitError(err error) {
	b.mu.Lock()
	b.stats.Errors++
	b.mu.Unlock()
	b.errs.publish(err)
}

func (b *baseTransport) emitMessage(f Frame) {
	b.mu.Lock()
	b.stats.MessagesReceived++
	var payload interface{} = f.Message
	if f.Wrapped {
		payload = f.Raw
	}
	if bs, err := json.Marshal(payload); err == nil {
		b.stats.BytesReceived += uint64(len(bs))
	}
	b.stats.LastActivity = time.Now()
	b.mu.Unlock()
	b.messages.publish(f)
}

func (b *baseTransport) recordSend(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.MessagesSent++
	b.stats.BytesSent += uint64(n)
	b.stats.LastActivity = time.Now()
}

func (b *baseTransport) closeStreams() {
	b.messages.close()
	b.states.close()
	b.errs.close()
}

// extractBayeuxMessages normalizes a decoded frame payload into the
// ordered slice of message maps it represents: a raw JSON string is
// decoded first, a single object becomes a one-element slice, and a JSON
// array is returned as-is after rejecting the empty array the Bayeux
// wire format never sends on its own ("Empty response array" — an empty
// batch means the server has nothing to say, which on a request/response
// transport means the request got no reply at all). Both HTTPTransport
// and WebsocketTransport decode every inbound payload through this one
// normalizer.
func extractBayeuxMessages(response interface{}) ([]map[string]interface{}, error) {
	switch v := response.(type) {
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, newNetworkError("Failed to parse response", err)
		}
		return extractBayeuxMessages(decoded)
	case []interface{}:
		if len(v) == 0 {
			return nil, newNetworkError("Empty response array", nil)
		}
		out := make([]map[string]interface{}, 0, len(v))
		for _, elem := range v {
			m, ok := elem.(map[string]interface{})
			if !ok {
				return nil, newNetworkError("Expected array element to be an object", nil)
			}
			out = append(out, m)
		}
		return out, nil
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	default:
		return nil, newNetworkError("Unexpected response shape", nil)
	}
}

// extractBayeuxMessage returns just the first message extractBayeuxMessages
// decodes, for callers that only expect (or only care about) one.
func extractBayeuxMessage(response interface{}) (map[string]interface{}, error) {
	ms, err := extractBayeuxMessages(response)
	if err != nil {
		return nil, err
	}
	return ms[0], nil
}

// decodeMessage re-encodes a normalized message map and decodes it into a
// Message, so both HTTP and WebSocket transports share one JSON-tag
// mapping instead of each hand-rolling it.
func decodeMessage(m map[string]interface{}) (Message, error) {
	bs, err := json.Marshal(m)
	if err != nil {
		return Message{}, newNetworkError("Failed to parse response", err)
	}
	var msg Message
	if err := json.Unmarshal(bs, &msg); err != nil {
		return Message{}, newNetworkError("Failed to parse response", err)
	}
	return msg, nil
}
