package gobayeux

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 1 * time.Second
	defaultMaxReconnects     = 5
	reconnectBackoffFactor   = 1.5
)

// WebsocketTransport implements the WebSocket connection type over
// github.com/gorilla/websocket, per
// https://docs.cometd.org/current/reference/#_transport_websocket.
type WebsocketTransport struct {
	baseTransport

	dialer *websocket.Dialer
	logger Logger
	clientID func() string

	heartbeatInterval time.Duration
	autoReconnect     bool
	maxReconnects     int
	reconnectDelay    time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	lastURL   string
	attempts  int

	heartbeatStop chan struct{}
	readDone      chan struct{}
	writeMu       sync.Mutex
}

// NewWebsocketTransport creates a WebsocketTransport. clientID is called
// by the heartbeat loop to read the session's current clientID; a missing
// clientID falls back to the literal "temp" rather than omitting the
// field.
func NewWebsocketTransport(clientID func() string, logger Logger) *WebsocketTransport {
	if logger == nil {
		logger = newNullLogger()
	}
	if clientID == nil {
		clientID = func() string { return "" }
	}
	return &WebsocketTransport{
		baseTransport:     newBaseTransport(30 * time.Second),
		dialer:            websocket.DefaultDialer,
		logger:            logger,
		clientID:          clientID,
		heartbeatInterval: defaultHeartbeatInterval,
		autoReconnect:     true,
		maxReconnects:     defaultMaxReconnects,
		reconnectDelay:    defaultReconnectDelay,
	}
}

// Name implements Transport.
func (t *WebsocketTransport) Name() string { return ConnectionTypeWebsocket }

// Supported implements Transport; always true since gorilla/websocket has
// no platform restriction.
func (t *WebsocketTransport) Supported() bool { return true }

// Connected implements Transport.
func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SetAutoReconnect toggles the reconnect-on-drop policy.
func (t *WebsocketTransport) SetAutoReconnect(enabled bool) { t.autoReconnect = enabled }

// SetHeartbeatInterval overrides the default 30s heartbeat cadence.
func (t *WebsocketTransport) SetHeartbeatInterval(d time.Duration) { t.heartbeatInterval = d }

// SetMaxReconnects overrides the default cap of 5 reconnect attempts.
func (t *WebsocketTransport) SetMaxReconnects(n int) { t.maxReconnects = n }

// wsURL rewrites an http(s):// endpoint to ws(s)://, preserving
// authority, path, and query.
func wsURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		// already a websocket URL
	default:
		if strings.HasPrefix(rawURL, "ws") {
			return rawURL, nil
		}
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// Connect implements Transport: it dials the endpoint (converted to
// ws(s)://) without forcing a subprotocol, starts the heartbeat, and
// resets the reconnect-attempt counter.
func (t *WebsocketTransport) Connect(ctx context.Context, rawURL string, headers http.Header) error {
	target, err := wsURL(rawURL)
	if err != nil {
		return newNetworkError("invalid websocket URL", err)
	}

	conn, _, err := t.dialer.DialContext(ctx, target, headers)
	if err != nil {
		return newNetworkError("websocket dial failed", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastURL = rawURL
	t.attempts = 0
	t.mu.Unlock()

	t.emitState(TransportConnected)

	t.readDone = make(chan struct{})
	t.heartbeatStop = make(chan struct{})
	go t.readLoop(conn, t.readDone)
	go t.heartbeatLoop()

	return nil
}

// Disconnect implements Transport.
func (t *WebsocketTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	t.connected = false
	t.mu.Unlock()

	if t.heartbeatStop != nil {
		close(t.heartbeatStop)
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if t.readDone != nil {
		<-t.readDone
	}
	t.emitState(TransportDisconnected)
	return err
}

// Close implements Transport.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	t.autoReconnect = false
	t.mu.Unlock()
	err := t.Disconnect()
	t.closeStreams()
	return err
}

// Send implements Transport: one JSON frame per envelope.
func (t *WebsocketTransport) Send(ctx context.Context, msg *Message) error {
	return t.writeJSON([]Message{*msg})
}

// SendBatch implements Transport: one JSON frame carrying the whole
// batch.
func (t *WebsocketTransport) SendBatch(ctx context.Context, msgs []*Message) error {
	ms := make([]Message, len(msgs))
	for i, m := range msgs {
		ms[i] = *m
	}
	return t.writeJSON(ms)
}

func (t *WebsocketTransport) writeJSON(v interface{}) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNoTransport
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	t.writeMu.Unlock()
	if err != nil {
		t.emitError(newNetworkError("websocket write failed", err))
		return err
	}
	t.recordSend(len(payload))
	return nil
}

// readLoop reads frames until the connection closes, emitting each
// decoded message (or array of messages) as a Frame. On exit it triggers
// the reconnect policy if enabled. There is exactly one readLoop per
// connection: Connect always starts a fresh one and Disconnect/Close
// always waits for the prior one to exit before returning, so no
// duplicate listener can accumulate across reconnects.
func (t *WebsocketTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			wasConnected := t.connected
			t.connected = false
			t.mu.Unlock()

			if wasConnected {
				t.emitState(TransportDisconnected)
			}
			if t.heartbeatStop != nil {
				select {
				case <-t.heartbeatStop:
				default:
					close(t.heartbeatStop)
				}
			}
			if wasConnected {
				t.maybeReconnect()
			}
			return
		}
		t.handleFrame(raw)
	}
}

// handleFrame decodes one inbound WebSocket text frame and emits it as
// one or more Frames. An object or an array of objects goes through
// extractBayeuxMessages, the same batch normalizer HTTPTransport decodes
// its responses with, so an empty array is rejected here exactly as it
// is there. Anything else (a bare string, number, bool, or null) is
// wrapped so the dispatcher still sees a map.
func (t *WebsocketTransport) handleFrame(raw []byte) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.emitError(newNetworkError("failed to decode websocket frame", err))
		return
	}

	switch decoded.(type) {
	case []interface{}, map[string]interface{}:
		maps, err := extractBayeuxMessages(decoded)
		if err != nil {
			t.emitError(err)
			return
		}
		for _, m := range maps {
			msg, err := decodeMessage(m)
			if err != nil {
				t.emitError(err)
				continue
			}
			t.emitMessage(Frame{Message: msg})
		}
	default:
		t.emitMessage(Frame{Raw: map[string]interface{}{"data": decoded, "type": "raw"}, Wrapped: true})
	}
}

func (t *WebsocketTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.heartbeatStop:
			return
		case <-ticker.C:
			id := t.clientID()
			if id == "" {
				id = "temp"
			}
			beat := Message{Channel: MetaConnect, ClientID: id, ConnectionType: ConnectionTypeWebsocket}
			if err := t.writeJSON([]Message{beat}); err != nil {
				t.emitError(newNetworkError("heartbeat failed", err))
			}
		}
	}
}

// maybeReconnect implements the exponential-backoff reconnect policy: on
// failure, reconnectDelay *= 1.5 (rounded), retried until maxReconnects is
// exhausted.
func (t *WebsocketTransport) maybeReconnect() {
	t.mu.Lock()
	enabled := t.autoReconnect
	attempts := t.attempts
	max := t.maxReconnects
	delay := t.reconnectDelay
	lastURL := t.lastURL
	t.mu.Unlock()

	if !enabled || attempts >= max {
		return
	}

	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		t.mu.Lock()
		if !t.autoReconnect {
			t.mu.Unlock()
			return
		}
		t.attempts++
		nextDelay := time.Duration(float64(t.reconnectDelay) * reconnectBackoffFactor)
		t.reconnectDelay = nextDelay
		t.mu.Unlock()

		if err := t.Connect(ctx, lastURL, nil); err != nil {
			t.emitError(newNetworkError("Reconnection failed", err))
			t.maybeReconnect()
		}
	})
}
