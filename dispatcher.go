package gobayeux

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// clientIDHolder guards the session's current clientID behind a RWMutex, in
// the same shape as the original client's clientState.
type clientIDHolder struct {
	mu sync.RWMutex
	id string
}

func (c *clientIDHolder) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *clientIDHolder) Set(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// awaiter is a one-shot rendezvous between doRequest (the caller of a
// request) and the background readLoop (the only goroutine that ever reads
// from a Transport's Messages() stream).
type awaiter struct {
	ch chan Message
}

func newAwaiter() *awaiter { return &awaiter{ch: make(chan Message, 1)} }

// Dispatcher owns the Bayeux session state machine: the handshake, the
// clientID, the currently selected Transport, the pending-response
// awaiters used to correlate a request with its asynchronous reply, and
// the advice last received from the server. Client is a thin layer of
// subscription bookkeeping on top of it.
type Dispatcher struct {
	serverAddress string
	headers       http.Header

	transports map[string]Transport
	transportMu sync.RWMutex
	current     Transport
	readLoopsMu sync.Mutex
	readLoops   map[Transport]bool

	state    *ConnectionStateMachine
	clientID clientIDHolder

	extMu sync.RWMutex
	ext   Extension

	adviceMu sync.RWMutex
	advice   Advice

	pendingMu sync.Mutex
	pending   map[string]*awaiter

	idCounter uint64

	logger      Logger
	ignoreError IgnoreErrorFunc
	timeout     time.Duration
	preferred   string

	// onBroadcast is invoked by the background reader for every inbound
	// message that does not correlate with a pending awaiter, i.e. every
	// message a subscription, not a request, should receive.
	onBroadcast func(Message)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newDispatcher(serverAddress string, transports map[string]Transport, options *Options) *Dispatcher {
	return &Dispatcher{
		serverAddress: serverAddress,
		transports:    transports,
		readLoops:     make(map[Transport]bool),
		state:         NewConnectionStateMachine(),
		pending:       make(map[string]*awaiter),
		logger:        options.Logger,
		ignoreError:   options.IgnoreError,
		timeout:       options.Timeout,
		preferred:     options.PreferredTransport,
		advice:        DefaultAdvice(),
		stopCh:        make(chan struct{}),
	}
}

// preferredTransport returns the connection type name last chosen via
// WithTransport or SetTransport, or "" to let selectTransport pick the
// default.
func (d *Dispatcher) preferredTransport() string {
	d.transportMu.RLock()
	defer d.transportMu.RUnlock()
	return d.preferred
}

func (d *Dispatcher) nextID() string {
	return strconv.FormatUint(atomic.AddUint64(&d.idCounter, 1)%(1<<53-1), 10)
}

func (d *Dispatcher) setExtension(ext Extension) {
	d.extMu.Lock()
	defer d.extMu.Unlock()
	d.ext = ext
}

func (d *Dispatcher) extension() Extension {
	d.extMu.RLock()
	defer d.extMu.RUnlock()
	return d.ext
}

func (d *Dispatcher) currentAdvice() Advice {
	d.adviceMu.RLock()
	defer d.adviceMu.RUnlock()
	return d.advice
}

func (d *Dispatcher) mergeAdvice(a *Advice) {
	if a == nil {
		return
	}
	d.adviceMu.Lock()
	defer d.adviceMu.Unlock()
	d.advice = d.advice.Merge(*a)
}

// currentTransport returns the transport currently selected for requests,
// or nil if none has been selected yet.
func (d *Dispatcher) currentTransport() Transport {
	d.transportMu.RLock()
	defer d.transportMu.RUnlock()
	return d.current
}

// selectTransport makes the transport registered under name current,
// preferring it for every subsequent request. An empty name picks the
// first supported transport in a fixed preference order (long-polling,
// then websocket, then callback-polling).
func (d *Dispatcher) selectTransport(name string) (Transport, error) {
	d.transportMu.Lock()
	defer d.transportMu.Unlock()

	if name == "" {
		for _, candidate := range []string{ConnectionTypeLongPolling, ConnectionTypeWebsocket, ConnectionTypeCallbackPolling} {
			if t, ok := d.transports[candidate]; ok && t.Supported() {
				d.current = t
				return t, nil
			}
		}
		return nil, ErrNoTransport
	}

	t, ok := d.transports[name]
	if !ok || !t.Supported() {
		return nil, BadConnectionTypeError{name}
	}
	d.current = t
	d.preferred = name
	return t, nil
}

// supportedConnectionTypeNames lists the connection type name of every
// registered, supported long-polling or websocket transport, in the same
// fixed preference order selectTransport uses. The handshake advertises
// all of them, not just the one selected for the handshake itself, so the
// server can name any of them in its reply's SupportedConnectionTypes.
// Callback-polling is never advertised.
func (d *Dispatcher) supportedConnectionTypeNames() []string {
	d.transportMu.RLock()
	defer d.transportMu.RUnlock()

	names := make([]string, 0, len(d.transports))
	for _, candidate := range []string{ConnectionTypeLongPolling, ConnectionTypeWebsocket} {
		t, ok := d.transports[candidate]
		if !ok || !t.Supported() {
			continue
		}
		names = append(names, t.Name())
	}
	return names
}

// ensureReadLoop starts exactly one background goroutine per Transport
// instance to drain its Messages(), States(), and Errors() streams; a
// second call for the same transport is a no-op, so reconnecting onto the
// same transport instance never accumulates duplicate readers.
func (d *Dispatcher) ensureReadLoop(t Transport) {
	d.readLoopsMu.Lock()
	defer d.readLoopsMu.Unlock()
	if d.readLoops[t] {
		return
	}
	d.readLoops[t] = true

	messages := t.Messages()
	states := t.States()
	errs := t.Errors()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.stopCh:
				return
			case f, ok := <-messages:
				if !ok {
					return
				}
				d.handleFrame(f)
			case s, ok := <-states:
				if !ok {
					return
				}
				if s == TransportDisconnected {
					_ = d.state.ProcessEvent(eventTransportDown)
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				d.handleTransportError(err)
			}
		}
	}()
}

func (d *Dispatcher) handleTransportError(err error) {
	if d.ignoreError != nil && d.ignoreError(err) {
		if d.logger != nil {
			d.logger.Debug("ignoring transport error", "error", err)
		}
		return
	}
	if d.logger != nil {
		d.logger.WithError(err).Warn("transport error")
	}
}

// handleFrame implements the dispatcher side of the Bayeux-shape
// normalizer: a decoded Frame either satisfies a pending awaiter (it is
// the reply to an outstanding request) or, having no matching id, is
// forwarded to the subscription fan-out as a broadcast message.
func (d *Dispatcher) handleFrame(f Frame) {
	if f.Wrapped {
		if d.logger != nil {
			d.logger.Debug("dropping non-object frame", "raw", f.Raw)
		}
		return
	}

	msg := cloneMessage(f.Message)
	applyIncoming(d.extension(), &msg, d.logger)

	if msg.Channel == MetaConnect {
		d.mergeAdvice(msg.Advice)
	}

	if msg.ID != "" && d.satisfyAwaiter(msg.ID, msg) {
		return
	}

	if d.onBroadcast != nil {
		d.onBroadcast(msg)
	}
}

func (d *Dispatcher) registerAwaiter(id string) *awaiter {
	a := newAwaiter()
	d.pendingMu.Lock()
	d.pending[id] = a
	d.pendingMu.Unlock()
	return a
}

func (d *Dispatcher) unregisterAwaiter(id string) {
	d.pendingMu.Lock()
	delete(d.pending, id)
	d.pendingMu.Unlock()
}

func (d *Dispatcher) satisfyAwaiter(id string, msg Message) bool {
	d.pendingMu.Lock()
	a, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.pendingMu.Unlock()
	if !ok {
		return false
	}
	a.ch <- msg
	return true
}

// doRequest sends ms over the current transport and waits for each
// message's reply to arrive via the background readLoop, matched by
// message id. It is the single choke point every Dispatcher operation
// (handshake, connect, subscribe, unsubscribe, publish, disconnect)
// funnels through.
func (d *Dispatcher) doRequest(ctx context.Context, ms []Message) ([]Message, error) {
	transport := d.currentTransport()
	if transport == nil {
		return nil, ErrNoTransport
	}

	ids := make([]string, len(ms))
	awaiters := make([]*awaiter, len(ms))
	for i := range ms {
		if ms[i].ID == "" {
			ms[i].ID = d.nextID()
		}
		ids[i] = ms[i].ID
		awaiters[i] = d.registerAwaiter(ids[i])
		// Extensions run against a private clone: Outgoing must not mutate
		// the caller's own Ext map out from under it.
		ms[i] = cloneMessage(ms[i])
		applyOutgoing(d.extension(), &ms[i], d.logger)
	}

	ptrs := make([]*Message, len(ms))
	for i := range ms {
		ptrs[i] = &ms[i]
	}

	if err := transport.SendBatch(ctx, ptrs); err != nil {
		for _, id := range ids {
			d.unregisterAwaiter(id)
		}
		return nil, err
	}

	timeout := transport.Timeout()
	if d.timeout > 0 {
		timeout = d.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	responses := make([]Message, 0, len(ms))
	for i, id := range ids {
		select {
		case m := <-awaiters[i].ch:
			responses = append(responses, m)
		case <-ctx.Done():
			d.unregisterAwaiter(id)
			return responses, ctx.Err()
		case <-timer.C:
			d.unregisterAwaiter(id)
			return responses, TimeoutError{ID: id}
		case <-d.stopCh:
			d.unregisterAwaiter(id)
			return responses, ErrClosed
		}
	}
	return responses, nil
}

// connect performs the Bayeux handshake over the selected (or default)
// transport and transitions the session into Connected on success.
func (d *Dispatcher) connect(ctx context.Context, preferredTransport string) error {
	if err := d.state.ProcessEvent(eventConnect); err != nil {
		return ConnectionFailedError{err}
	}

	transport, err := d.selectTransport(preferredTransport)
	if err != nil {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return ConnectionFailedError{err}
	}

	if err := transport.Connect(ctx, d.serverAddress, d.headers); err != nil {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return ConnectionFailedError{err}
	}
	d.ensureReadLoop(transport)

	builder := NewHandshakeRequestBuilder()
	if err := builder.AddVersion(BayeuxVersion); err != nil {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return HandshakeFailedError{err}
	}
	for _, name := range d.supportedConnectionTypeNames() {
		if err := builder.AddSupportedConnectionType(name); err != nil {
			_ = d.state.ProcessEvent(eventHandshakeFail)
			return HandshakeFailedError{err}
		}
	}
	ms, err := builder.Build()
	if err != nil {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return HandshakeFailedError{err}
	}

	resp, err := d.doRequest(ctx, ms)
	if err != nil {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return HandshakeFailedError{err}
	}
	if len(resp) > 1 {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return HandshakeFailedError{ErrTooManyMessages}
	}

	var handshakeResponse Message
	for _, m := range resp {
		if m.Channel == MetaHandshake {
			handshakeResponse = m
		}
	}
	if handshakeResponse.Channel == emptyChannel {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return HandshakeFailedError{ErrBadChannel}
	}
	if !handshakeResponse.Successful {
		_ = d.state.ProcessEvent(eventHandshakeFail)
		return newHandshakeError(handshakeResponse.Error)
	}

	d.clientID.Set(handshakeResponse.ClientID)
	d.mergeAdvice(handshakeResponse.Advice)
	d.switchToNegotiatedTransport(ctx, handshakeResponse.SupportedConnectionTypes)
	if err := d.state.ProcessEvent(eventHandshakeOK); err != nil {
		return HandshakeFailedError{err}
	}
	return nil
}

// switchToNegotiatedTransport honors the server's handshake reply: its
// SupportedConnectionTypes lists what it is willing to use, with the
// first entry its preference. If the client owns that transport and it
// differs from the one the handshake was sent over, doRequest is switched
// to it, dialing it first if it isn't already connected. A transport the
// client doesn't own, or one that fails to connect, is not an error —
// the handshake transport is simply kept.
func (d *Dispatcher) switchToNegotiatedTransport(ctx context.Context, types []string) {
	if len(types) == 0 {
		return
	}
	negotiated, ok := d.transports[types[0]]
	if !ok || !negotiated.Supported() || negotiated == d.currentTransport() {
		return
	}
	if !negotiated.Connected() {
		if err := negotiated.Connect(ctx, d.serverAddress, d.headers); err != nil {
			if d.logger != nil {
				d.logger.WithError(err).Warn("could not switch to server-negotiated transport")
			}
			return
		}
	}
	d.ensureReadLoop(negotiated)
	d.transportMu.Lock()
	d.current = negotiated
	d.transportMu.Unlock()
}

// disconnect issues a /meta/disconnect and tears the transport down.
func (d *Dispatcher) disconnect(ctx context.Context) error {
	clientID := d.clientID.Get()
	if !d.state.IsConnected() || clientID == "" {
		return DisconnectFailedError{ErrClientNotConnected}
	}

	builder := NewDisconnectRequestBuilder()
	builder.AddClientID(clientID)
	ms, err := builder.Build()
	if err != nil {
		return DisconnectFailedError{err}
	}

	resp, err := d.doRequest(ctx, ms)
	if err != nil {
		return DisconnectFailedError{err}
	}
	for _, m := range resp {
		if m.Channel == MetaDisconnect && !m.Successful {
			return DisconnectFailedError{nil}
		}
	}

	if transport := d.currentTransport(); transport != nil {
		_ = transport.Disconnect()
	}
	return d.state.ProcessEvent(eventDisconnect)
}

// subscribe issues a /meta/subscribe for every channel in one request,
// returning the per-channel responses in the order the channels were
// added. The subscribe-during-CONNECTING carve-out (subscribing is
// allowed as soon as a clientID has been assigned, even before the
// session is fully Connected) matches how the original client let a
// handshake's own continuation subscribe without waiting on the state
// machine.
func (d *Dispatcher) subscribe(ctx context.Context, channels []Channel) ([]Message, error) {
	clientID := d.clientID.Get()
	if clientID == "" {
		return nil, SubscriptionFailedError{channels, ErrClientNotConnected}
	}

	builder := NewSubscribeRequestBuilder()
	builder.AddClientID(clientID)
	for _, c := range channels {
		if err := builder.AddSubscription(c); err != nil {
			return nil, SubscriptionFailedError{channels, err}
		}
	}
	ms, err := builder.Build()
	if err != nil {
		return nil, SubscriptionFailedError{channels, err}
	}

	resp, err := d.doRequest(ctx, ms)
	if err != nil {
		return resp, SubscriptionFailedError{channels, err}
	}
	for _, m := range resp {
		if m.Channel == MetaSubscribe && !m.Successful {
			return resp, SubscriptionFailedError{channels, protocolError(m.Error)}
		}
	}
	return resp, nil
}

// unsubscribe issues a /meta/unsubscribe for every channel.
func (d *Dispatcher) unsubscribe(ctx context.Context, channels []Channel) ([]Message, error) {
	clientID := d.clientID.Get()
	if clientID == "" {
		return nil, UnsubscribeFailedError{channels, ErrClientNotConnected}
	}

	builder := NewUnsubscribeRequestBuilder()
	builder.AddClientID(clientID)
	for _, c := range channels {
		if err := builder.AddSubscription(c); err != nil {
			return nil, UnsubscribeFailedError{channels, err}
		}
	}
	ms, err := builder.Build()
	if err != nil {
		return nil, UnsubscribeFailedError{channels, err}
	}

	resp, err := d.doRequest(ctx, ms)
	if err != nil {
		return resp, UnsubscribeFailedError{channels, err}
	}
	for _, m := range resp {
		if m.Channel == MetaUnsubscribe && !m.Successful {
			return resp, UnsubscribeFailedError{channels, protocolError(m.Error)}
		}
	}
	return resp, nil
}

// publish sends data to channel and waits for the server's acknowledgment,
// recording the outcome on the returned Publication. A Bayeux-level
// rejection (Successful: false) is never returned as an error from
// publish itself — only a hard failure to send or to get any reply at
// all is.
func (d *Dispatcher) publish(ctx context.Context, channel Channel, data json.RawMessage, ext map[string]interface{}) (*Publication, error) {
	clientID := d.clientID.Get()
	if clientID == "" {
		return nil, ErrClientNotConnected
	}
	if !channel.IsValidName() {
		return nil, InvalidChannelError{channel}
	}

	id := d.nextID()
	msg := Message{Channel: channel, ClientID: clientID, ID: id, Data: data, Ext: ext}
	pub := newPublication(id, channel, data, ext)

	resp, err := d.doRequest(ctx, []Message{msg})
	if err != nil {
		_ = pub.markFailed(err)
		return pub, err
	}
	if len(resp) == 0 {
		_ = pub.markFailed(ErrFailedToConnect)
		return pub, nil
	}
	if !resp[0].Successful {
		_ = pub.markFailed(PublicationFailedError{Channel: channel, Err: protocolError(resp[0].Error)})
		return pub, nil
	}
	_ = pub.markSuccessful()
	return pub, nil
}

// close moves the session to Unconnected, stops the background readLoop
// goroutines and releases every registered transport.
func (d *Dispatcher) close() error {
	_ = d.state.ProcessEvent(eventClose)
	close(d.stopCh)
	d.wg.Wait()

	d.transportMu.RLock()
	transports := make([]Transport, 0, len(d.transports))
	for _, t := range d.transports {
		transports = append(transports, t)
	}
	d.transportMu.RUnlock()

	var firstErr error
	for _, t := range transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// protocolError renders a Bayeux "code:params:message" error string as a
// plain error, falling back to ErrMessageUnparsable if it doesn't parse.
func protocolError(raw string) error {
	if raw == "" {
		return nil
	}
	me, err := parseMessageError(raw)
	if err != nil {
		return err
	}
	return fmt.Errorf("%s", me.Message)
}
