package gobayeux

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
)

// Client is a Bayeux client: it owns a Dispatcher (the session state
// machine, handshake, and request/response correlation) and a
// subscription registry, and is the package's main entry point.
//
// A Client is safe for concurrent use.
type Client struct {
	dispatcher *Dispatcher
	logger     Logger

	subsMu sync.RWMutex
	subs   map[string]*Subscription

	closeOnce sync.Once
	closed    bool
	closedMu  sync.RWMutex
}

// NewClient creates a Client targeting serverAddress (an http(s):// URL).
// It registers an HTTPTransport, a CallbackPollingTransport, and a
// WebsocketTransport by default; use WithTransport to pick which one is
// current, and SetTransport to change it after construction.
func NewClient(serverAddress string, opts ...Option) (*Client, error) {
	options := resolveOptions(opts)

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if options.HTTPTransport != nil {
		httpClient.Transport = options.HTTPTransport
	}

	c := &Client{
		logger: options.Logger,
		subs:   make(map[string]*Subscription),
	}

	httpTransport, err := NewHTTPTransport(httpClient, c.currentClientID, options.Logger)
	if err != nil {
		return nil, err
	}
	callbackTransport, err := NewCallbackPollingTransport(httpClient, c.currentClientID, options.Logger)
	if err != nil {
		return nil, err
	}
	wsTransport := NewWebsocketTransport(c.currentClientID, options.Logger)

	transports := map[string]Transport{
		ConnectionTypeLongPolling:     httpTransport,
		ConnectionTypeCallbackPolling: callbackTransport,
		ConnectionTypeWebsocket:       wsTransport,
	}

	if options.Timeout > 0 {
		for _, t := range transports {
			t.SetTimeout(options.Timeout)
		}
	}

	c.dispatcher = newDispatcher(serverAddress, transports, options)
	c.dispatcher.onBroadcast = c.handleBroadcast
	if options.Extension != nil {
		c.dispatcher.setExtension(options.Extension)
	}

	return c, nil
}

func (c *Client) currentClientID() string {
	return c.dispatcher.clientID.Get()
}

// Connect performs the Bayeux handshake and transitions the session to
// Connected. Subscribe needs the clientID the handshake assigns; a
// Subscribe made before that fails with ErrClientNotConnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.dispatcher.connect(ctx, c.dispatcher.preferredTransport())
}

// Disconnect issues a /meta/disconnect and tears the transport down. The
// Client remains usable afterward; Connect can be called again.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.dispatcher.disconnect(ctx)
}

// SetTransport switches the connection type used for subsequent requests
// to the one registered under name (one of ConnectionTypeLongPolling,
// ConnectionTypeCallbackPolling, ConnectionTypeWebsocket). It does not by
// itself reconnect; call Connect again after switching.
func (c *Client) SetTransport(name string) error {
	_, err := c.dispatcher.selectTransport(name)
	return err
}

// SetExtension installs the single Extension slot, replacing any
// previously installed extension.
func (c *Client) SetExtension(ext Extension) {
	c.dispatcher.setExtension(ext)
}

// Subscribe issues a /meta/subscribe for channel and registers callback to
// receive every subsequent message delivered to it, including wildcard
// matches if channel is a pattern. The returned Subscription is also
// usable to Cancel delivery locally without an /meta/unsubscribe
// round-trip.
func (c *Client) Subscribe(ctx context.Context, channel Channel, callback SubscriptionCallback) (*Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if !channel.IsValidName() && !channel.IsValidPattern() {
		return nil, InvalidChannelError{channel}
	}

	if _, err := c.dispatcher.subscribe(ctx, []Channel{channel}); err != nil {
		return nil, err
	}

	sub := newSubscription(c, channel, callback)
	c.subsMu.Lock()
	c.subs[sub.ID] = sub
	c.subsMu.Unlock()
	return sub, nil
}

// Unsubscribe issues a /meta/unsubscribe for channel and cancels every
// local Subscription registered against it.
func (c *Client) Unsubscribe(ctx context.Context, channel Channel) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.dispatcher.unsubscribe(ctx, []Channel{channel}); err != nil {
		return err
	}

	c.subsMu.Lock()
	for id, sub := range c.subs {
		if sub.Channel == channel {
			sub.deactivate()
			delete(c.subs, id)
		}
	}
	c.subsMu.Unlock()
	return nil
}

// Publish sends data to channel, returning a Publication that reports the
// outcome once the server acknowledges it. A nil error from Publish means
// the request was sent and its round-trip completed — check
// Publication.Successful/Err for the protocol-level outcome. A send
// failure or a timeout is returned as the error.
func (c *Client) Publish(ctx context.Context, channel Channel, data interface{}) (*Publication, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.dispatcher.publish(ctx, channel, raw, nil)
}

// Statistics returns the counters of the currently selected transport.
func (c *Client) Statistics() TransportStats {
	if t := c.dispatcher.currentTransport(); t != nil {
		return t.Statistics()
	}
	return TransportStats{}
}

// State reports the session's current connection state.
func (c *Client) State() State {
	return c.dispatcher.state.CurrentState()
}

// removeSubscription drops sub from the registry without issuing a
// /meta/unsubscribe; it is called by Subscription.Cancel.
func (c *Client) removeSubscription(sub *Subscription) {
	c.subsMu.Lock()
	delete(c.subs, sub.ID)
	c.subsMu.Unlock()
}

// handleBroadcast fans a message received outside of any request/response
// correlation out to every active Subscription whose Channel matches it,
// in the order subscriptions were registered.
func (c *Client) handleBroadcast(msg Message) {
	c.subsMu.RLock()
	matches := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if !sub.Active() {
			continue
		}
		if msg.Channel == sub.Channel || msg.Channel.Matches(sub.Channel) {
			matches = append(matches, sub)
		}
	}
	c.subsMu.RUnlock()
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	for _, sub := range matches {
		sub.handleMessage(msg.Data, c.logger)
	}
}

func (c *Client) isClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Close releases every resource the Client holds: background goroutines,
// transports, and timers. A closed Client cannot be reused.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.subsMu.Lock()
		for _, sub := range c.subs {
			sub.deactivate()
		}
		c.subs = make(map[string]*Subscription)
		c.subsMu.Unlock()

		err = c.dispatcher.close()
	})
	return err
}
