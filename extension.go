package gobayeux

// Extension is the contract any Bayeux message extension implements: a
// pure transform over outbound and inbound envelopes, applied at the
// Dispatcher boundary. Implementations may add fields to a message
// (conventionally under its Ext bag) and must tolerate being called on
// any meta or user channel.
//
// Only a single Extension slot is defined on a Client/Dispatcher;
// chaining multiple extensions together is the caller's responsibility —
// compose them externally (e.g. by having one Extension's Outgoing call
// into another's).
type Extension interface {
	// Outgoing rewrites a message immediately before it is sent.
	Outgoing(m *Message)
	// Incoming rewrites a message immediately after it is received, before
	// dispatch/routing.
	Incoming(m *Message)
}

// FuncExtension adapts two plain functions to the Extension interface,
// for composing ad hoc transforms without declaring a named type. A nil
// function is treated as the identity transform.
type FuncExtension struct {
	OutgoingFunc func(*Message)
	IncomingFunc func(*Message)
}

// Outgoing implements Extension.
func (f FuncExtension) Outgoing(m *Message) {
	if f.OutgoingFunc != nil {
		f.OutgoingFunc(m)
	}
}

// Incoming implements Extension.
func (f FuncExtension) Incoming(m *Message) {
	if f.IncomingFunc != nil {
		f.IncomingFunc(m)
	}
}

// DefaultExtension inserts ext.api and ext.token authentication fields
// into every outbound message. It performs no transform on inbound
// messages.
type DefaultExtension struct {
	// API is the value written to ext.api on outbound messages.
	API string
	// Token is the value written to ext.token on outbound messages.
	Token string
}

// Outgoing implements Extension.
func (d DefaultExtension) Outgoing(m *Message) {
	ext := m.GetExt(true)
	if d.API != "" {
		ext["api"] = d.API
	}
	if d.Token != "" {
		ext["token"] = d.Token
	}
}

// Incoming implements Extension as a no-op.
func (d DefaultExtension) Incoming(m *Message) {}

// applyOutgoing runs ext.Outgoing on msg, recovering any panic and
// treating it as identity, with a warning logged.
func applyOutgoing(ext Extension, msg *Message, logger Logger) {
	if ext == nil {
		return
	}
	orig := cloneMessage(*msg)
	defer func() {
		if r := recover(); r != nil {
			*msg = orig
			if logger != nil {
				logger.Warn("outgoing extension failed, using original message", "recovered", r)
			}
		}
	}()
	ext.Outgoing(msg)
}

// applyIncoming runs ext.Incoming on msg, recovering any panic and
// treating it as identity.
func applyIncoming(ext Extension, msg *Message, logger Logger) {
	if ext == nil {
		return
	}
	orig := cloneMessage(*msg)
	defer func() {
		if r := recover(); r != nil {
			*msg = orig
			if logger != nil {
				logger.Warn("incoming extension failed, using original message", "recovered", r)
			}
		}
	}()
	ext.Incoming(msg)
}
