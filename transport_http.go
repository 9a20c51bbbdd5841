package gobayeux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const defaultPollingInterval = 0 * time.Millisecond

// HTTPTransport implements long-polling over HTTP, per
// https://docs.cometd.org/current/reference/#_transport_long_polling.
type HTTPTransport struct {
	baseTransport

	client          *http.Client
	serverAddress   *url.URL
	defaultHeaders  http.Header
	pollingInterval time.Duration
	logger          Logger

	connMu    sync.Mutex
	connected bool
	clientID  func() string

	pollStop chan struct{}
	pollDone chan struct{}
}

// NewHTTPTransport creates an HTTPTransport. clientID is called by the
// poll loop to read the session's current clientID (the dispatcher owns
// that value); it may return "" before a handshake has completed.
func NewHTTPTransport(client *http.Client, clientID func() string, logger Logger) (*HTTPTransport, error) {
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: jar}
	}
	if logger == nil {
		logger = newNullLogger()
	}
	if clientID == nil {
		clientID = func() string { return "" }
	}
	return &HTTPTransport{
		baseTransport:   newBaseTransport(30 * time.Second),
		client:          client,
		pollingInterval: defaultPollingInterval,
		logger:          logger,
		clientID:        clientID,
	}, nil
}

// Name implements Transport.
func (t *HTTPTransport) Name() string { return ConnectionTypeLongPolling }

// Supported implements Transport; HTTP long-polling works anywhere
// net/http does.
func (t *HTTPTransport) Supported() bool { return true }

// Connected implements Transport.
func (t *HTTPTransport) Connected() bool {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.connected
}

// SetPollingInterval overrides the delay between successive
// /meta/connect polls.
func (t *HTTPTransport) SetPollingInterval(d time.Duration) { t.pollingInterval = d }

// Connect implements Transport: it merges default headers, probes the
// endpoint with a handshake envelope, and on success starts the poll
// loop.
func (t *HTTPTransport) Connect(ctx context.Context, rawURL string, headers http.Header) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return newNetworkError("invalid transport URL", err)
	}
	t.serverAddress = parsed

	merged := http.Header{}
	merged.Set("Content-Type", "application/json")
	merged.Set("Accept", "application/json")
	merged.Set("User-Agent", "gobayeux/1.0")
	for k, vs := range headers {
		for _, v := range vs {
			merged.Set(k, v)
		}
	}
	t.defaultHeaders = merged

	probe := Message{
		Channel:                  MetaHandshake,
		Version:                  BayeuxVersion,
		SupportedConnectionTypes: []string{ConnectionTypeLongPolling},
	}
	resp, err := t.post(ctx, []Message{probe})
	if err != nil {
		return newNetworkError("transport connect failed", err)
	}
	if len(resp) == 0 || !resp[0].Successful {
		return newNetworkError("transport connect probe was not successful", nil)
	}

	t.connMu.Lock()
	t.connected = true
	t.connMu.Unlock()
	t.emitState(TransportConnected)

	t.pollStop = make(chan struct{})
	t.pollDone = make(chan struct{})
	go t.pollLoop()

	return nil
}

// Disconnect implements Transport, stopping the poll loop without
// releasing event streams (a further Connect is valid).
func (t *HTTPTransport) Disconnect() error {
	t.connMu.Lock()
	if !t.connected {
		t.connMu.Unlock()
		return nil
	}
	t.connected = false
	t.connMu.Unlock()

	if t.pollStop != nil {
		close(t.pollStop)
		<-t.pollDone
	}
	t.emitState(TransportDisconnected)
	return nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	_ = t.Disconnect()
	t.closeStreams()
	return nil
}

// Send implements Transport: it POSTs a single envelope and emits every
// element of the response as an inbound Frame, satisfying the
// dispatcher's pending-response awaiter. Long-polling responses are not
// correlated by the transport itself — the Bayeux-shape normalizer is the
// source of truth.
func (t *HTTPTransport) Send(ctx context.Context, msg *Message) error {
	return t.SendBatch(ctx, []*Message{msg})
}

// SendBatch implements Transport: a single POST carrying every message,
// with every element of the response emitted as its own Frame.
func (t *HTTPTransport) SendBatch(ctx context.Context, msgs []*Message) error {
	ms := make([]Message, len(msgs))
	for i, m := range msgs {
		ms[i] = *m
	}
	resp, err := t.post(ctx, ms)
	if err != nil {
		t.emitError(newNetworkError("send failed", err))
		return err
	}
	for _, m := range resp {
		t.emitMessage(Frame{Message: m})
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, ms []Message) ([]Message, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ms); err != nil {
		return nil, err
	}
	t.recordSend(buf.Len())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverAddress.String(), &buf)
	if err != nil {
		return nil, err
	}
	for k, vs := range t.defaultHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, FromHTTP(resp.StatusCode, resp.Status, body)
	}

	return decodeBayeuxMessages(body)
}

// decodeBayeuxMessages decodes a Bayeux HTTP response body, which may be
// a single envelope or an array of envelopes, into a uniform slice. It is
// a thin wrapper around extractBayeuxMessages, the normalizer shared with
// WebsocketTransport, so an empty response array is rejected here exactly
// as it is there rather than being silently decoded into a zero-length,
// error-free slice.
func decodeBayeuxMessages(body []byte) ([]Message, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newNetworkError("Failed to parse response", err)
	}
	maps, err := extractBayeuxMessages(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(maps))
	for i, m := range maps {
		msg, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		out[i] = msg
	}
	return out, nil
}

func (t *HTTPTransport) pollLoop() {
	defer close(t.pollDone)
	ctx := context.Background()

	for {
		select {
		case <-t.pollStop:
			return
		default:
		}

		id := t.clientID()
		if id == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		connectMsg := Message{
			Channel:        MetaConnect,
			ClientID:       id,
			ConnectionType: ConnectionTypeLongPolling,
		}
		resp, err := t.post(ctx, []Message{connectMsg})
		if err != nil {
			t.emitError(newNetworkError("poll failed", err))
			return
		}
		for _, m := range resp {
			t.emitMessage(Frame{Message: m})
		}

		if t.pollingInterval > 0 {
			select {
			case <-t.pollStop:
				return
			case <-time.After(t.pollingInterval):
			}
		}
	}
}

// CallbackPollingTransport implements the JSONP (callback-polling)
// connection type: a GET request carrying the JSON-encoded batch in a
// `message` query parameter and the callback name `callback<millis>` (the
// current millisecond timestamp) in a `jsonp` query parameter, with the
// response body unwrapped from its `callback<millis>(...)` envelope before
// decoding.
type CallbackPollingTransport struct {
	*HTTPTransport
}

// NewCallbackPollingTransport wraps an HTTPTransport to issue
// callback-polling (JSONP) requests instead of plain POSTs.
func NewCallbackPollingTransport(client *http.Client, clientID func() string, logger Logger) (*CallbackPollingTransport, error) {
	base, err := NewHTTPTransport(client, clientID, logger)
	if err != nil {
		return nil, err
	}
	return &CallbackPollingTransport{HTTPTransport: base}, nil
}

// Name implements Transport.
func (t *CallbackPollingTransport) Name() string { return ConnectionTypeCallbackPolling }

// Send implements Transport using a JSONP GET instead of a POST.
func (t *CallbackPollingTransport) Send(ctx context.Context, msg *Message) error {
	return t.SendBatch(ctx, []*Message{msg})
}

// SendBatch implements Transport using a JSONP GET instead of a POST.
func (t *CallbackPollingTransport) SendBatch(ctx context.Context, msgs []*Message) error {
	ms := make([]Message, len(msgs))
	for i, m := range msgs {
		ms[i] = *m
	}
	payload, err := json.Marshal(ms)
	if err != nil {
		return err
	}

	callback := fmt.Sprintf("callback%d", time.Now().UnixMilli())
	q := t.serverAddress.Query()
	q.Set("message", string(payload))
	q.Set("jsonp", callback)
	reqURL := *t.serverAddress
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.emitError(newNetworkError("jsonp send failed", err))
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		err := FromHTTP(resp.StatusCode, resp.Status, body)
		t.emitError(err)
		return err
	}

	unwrapped := stripJSONPWrapper(body, callback)
	out, err := decodeBayeuxMessages(unwrapped)
	if err != nil {
		t.emitError(err)
		return err
	}
	for _, m := range out {
		t.emitMessage(Frame{Message: m})
	}
	return nil
}

// stripJSONPWrapper removes a `callbackName(...)` wrapper from body,
// returning body unchanged if the wrapper isn't present.
func stripJSONPWrapper(body []byte, callback string) []byte {
	s := strings.TrimSpace(string(body))
	prefix := callback + "("
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, ")") {
		return body
	}
	return []byte(strings.TrimSuffix(strings.TrimPrefix(s, prefix), ")"))
}

// jsonpCallbackFromMillis builds a callback parameter from the current
// millisecond timestamp, kept separate for testability without a clock
// dependency.
func jsonpCallbackFromMillis(millis int64) string {
	return "callback" + strconv.FormatInt(millis, 10)
}
