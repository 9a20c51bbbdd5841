package gobayeux

import (
	"strconv"
	"strings"
)

// HandshakeRequestBuilder provides a way to safely and confidently build
// the Message sent to /meta/handshake.
//
// See also: https://docs.cometd.org/current/reference/#_handshake_request
type HandshakeRequestBuilder struct {
	version                  string
	supportedConnectionTypes []string
	minimumVersion           string
	ext                      map[string]interface{}
}

// NewHandshakeRequestBuilder creates an empty HandshakeRequestBuilder.
func NewHandshakeRequestBuilder() *HandshakeRequestBuilder {
	return &HandshakeRequestBuilder{supportedConnectionTypes: make([]string, 0)}
}

// AddSupportedConnectionType appends a connection type to the handshake
// request, de-duplicating and validating it against the known connection
// types.
func (b *HandshakeRequestBuilder) AddSupportedConnectionType(connectionType string) error {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame, ConnectionTypeWebsocket:
		for _, ct := range b.supportedConnectionTypes {
			if ct == connectionType {
				return nil
			}
		}
		b.supportedConnectionTypes = append(b.supportedConnectionTypes, connectionType)
	default:
		return BadConnectionTypeError{connectionType}
	}
	return nil
}

// AddVersion sets the Bayeux protocol version the client speaks.
func (b *HandshakeRequestBuilder) AddVersion(version string) error {
	if err := validateVersion(version); err != nil {
		return err
	}
	b.version = version
	return nil
}

// AddMinimumVersion sets the oldest Bayeux protocol version the client
// will accept.
func (b *HandshakeRequestBuilder) AddMinimumVersion(version string) error {
	if err := validateVersion(version); err != nil {
		return err
	}
	b.minimumVersion = version
	return nil
}

// AddExt adds a key/value pair to the handshake's ext bag, for use by
// extensions that need to authenticate as part of the handshake.
func (b *HandshakeRequestBuilder) AddExt(key string, value interface{}) {
	if b.ext == nil {
		b.ext = make(map[string]interface{})
	}
	b.ext[key] = value
}

func validateVersion(version string) error {
	if len(version) < 1 {
		return ErrNoVersion
	}
	pieces := strings.SplitN(version, ".", 2)
	if _, err := strconv.Atoi(pieces[0]); err != nil {
		return BadConnectionVersionError{version}
	}
	return nil
}

// Build generates the Message to be sent as a handshake request.
func (b *HandshakeRequestBuilder) Build() ([]Message, error) {
	if len(b.supportedConnectionTypes) < 1 {
		return nil, ErrNoSupportedConnectionTypes
	}
	if len(b.version) == 0 {
		return nil, ErrNoVersion
	}
	m := Message{
		Channel:                  MetaHandshake,
		Version:                  b.version,
		SupportedConnectionTypes: b.supportedConnectionTypes,
		Ext:                      b.ext,
	}
	if len(b.minimumVersion) > 0 {
		m.MinimumVersion = b.minimumVersion
	}
	return []Message{m}, nil
}

// ConnectRequestBuilder provides a way to safely build a Message sent as
// a /meta/connect request.
//
// See also: https://docs.cometd.org/current/reference/#_connect_request
type ConnectRequestBuilder struct {
	clientID       string
	connectionType string
}

// NewConnectRequestBuilder creates an empty ConnectRequestBuilder.
func NewConnectRequestBuilder() *ConnectRequestBuilder {
	return &ConnectRequestBuilder{}
}

// AddClientID sets the clientID to use in the request.
func (b *ConnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddConnectionType sets the connection type this connect request is
// being made over.
func (b *ConnectRequestBuilder) AddConnectionType(connectionType string) error {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame, ConnectionTypeWebsocket:
		b.connectionType = connectionType
	default:
		return BadConnectionTypeError{connectionType}
	}
	return nil
}

// Build generates the Message to be sent as a connect request.
func (b *ConnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	if b.connectionType == "" {
		return nil, ErrMissingConnectionType
	}
	return []Message{{
		Channel:        MetaConnect,
		ClientID:       b.clientID,
		ConnectionType: b.connectionType,
	}}, nil
}

// SubscribeRequestBuilder provides a way to safely build a Message sent
// as a /meta/subscribe request.
//
// See also: https://docs.cometd.org/current/reference/#_subscribe_request
type SubscribeRequestBuilder struct {
	clientID     string
	subscription []Channel
}

// NewSubscribeRequestBuilder creates an empty SubscribeRequestBuilder.
func NewSubscribeRequestBuilder() *SubscribeRequestBuilder {
	return &SubscribeRequestBuilder{subscription: make([]Channel, 0)}
}

// AddClientID sets the clientID to use in the request.
func (b *SubscribeRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddSubscription adds a channel or pattern to subscribe to,
// de-duplicating repeated values.
func (b *SubscribeRequestBuilder) AddSubscription(c Channel) error {
	if !c.IsValidName() && !c.IsValidPattern() {
		return InvalidChannelError{c}
	}
	for _, s := range b.subscription {
		if s == c {
			return nil
		}
	}
	b.subscription = append(b.subscription, c)
	return nil
}

// Build generates one Message per subscription to be sent as a subscribe
// request.
func (b *SubscribeRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	if len(b.subscription) < 1 {
		return nil, ErrEmptySlice("subscriptions provided")
	}
	ms := make([]Message, len(b.subscription))
	for i := range b.subscription {
		ms[i] = Message{
			Channel:      MetaSubscribe,
			ClientID:     b.clientID,
			Subscription: b.subscription[i],
		}
	}
	return ms, nil
}

// UnsubscribeRequestBuilder provides a way to safely build a Message sent
// as a /meta/unsubscribe request.
//
// See also: https://docs.cometd.org/current/reference/#_unsubscribe_request
type UnsubscribeRequestBuilder struct {
	clientID     string
	subscription []Channel
}

// NewUnsubscribeRequestBuilder creates an empty UnsubscribeRequestBuilder.
func NewUnsubscribeRequestBuilder() *UnsubscribeRequestBuilder {
	return &UnsubscribeRequestBuilder{subscription: make([]Channel, 0)}
}

// AddClientID sets the clientID to use in the request.
func (b *UnsubscribeRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddSubscription adds a channel or pattern to unsubscribe from,
// de-duplicating repeated values.
func (b *UnsubscribeRequestBuilder) AddSubscription(c Channel) error {
	if !c.IsValidName() && !c.IsValidPattern() {
		return InvalidChannelError{c}
	}
	for _, s := range b.subscription {
		if s == c {
			return nil
		}
	}
	b.subscription = append(b.subscription, c)
	return nil
}

// Build generates one Message per subscription to be sent as an
// unsubscribe request.
func (b *UnsubscribeRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	if len(b.subscription) < 1 {
		return nil, ErrEmptySlice("subscriptions provided")
	}
	ms := make([]Message, len(b.subscription))
	for i := range b.subscription {
		ms[i] = Message{
			Channel:      MetaUnsubscribe,
			ClientID:     b.clientID,
			Subscription: b.subscription[i],
		}
	}
	return ms, nil
}

// DisconnectRequestBuilder provides a way to safely build a Message sent
// as a /meta/disconnect request.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_meta_disconnect
type DisconnectRequestBuilder struct {
	clientID string
}

// NewDisconnectRequestBuilder creates an empty DisconnectRequestBuilder.
func NewDisconnectRequestBuilder() *DisconnectRequestBuilder {
	return &DisconnectRequestBuilder{}
}

// AddClientID sets the clientID to use in the request.
func (b *DisconnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// Build generates the Message to be sent as a disconnect request.
func (b *DisconnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	return []Message{{Channel: MetaDisconnect, ClientID: b.clientID}}, nil
}
