package gobayeux

import "sync/atomic"

// State represents one of the four states a Dispatcher's session can be
// in.
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type State int32

const (
	// Unconnected is the state before a handshake has ever succeeded, or
	// after the transport has dropped and no reconnect has yet begun.
	Unconnected State = iota + 1
	// Connecting is the state between issuing a handshake and receiving
	// its response.
	Connecting
	// Connected is the state once a handshake has succeeded and a
	// clientID is held.
	Connected
	// Disconnected is the state after a deliberate Disconnect, before the
	// transport has confirmed it is down and the session has fully
	// unwound back to Unconnected.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "UNCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// stateEvent represents an event that can move a ConnectionStateMachine
// between states.
type stateEvent string

const (
	eventConnect    stateEvent = "connect"
	eventHandshakeOK stateEvent = "handshake-ok"
	eventHandshakeFail stateEvent = "handshake-fail"
	eventDisconnect stateEvent = "disconnect"
	eventTransportDown stateEvent = "transport-down"
	eventClose      stateEvent = "close"
)

// ConnectionStateMachine manages the four-state session lifecycle:
//
//	UNCONNECTED --connect()--> CONNECTING --handshake ok--> CONNECTED
//	CONNECTING --handshake fail--> DISCONNECTED
//	CONNECTED --disconnect()--> DISCONNECTED --transport down--> UNCONNECTED
//	any --close()--> UNCONNECTED
//
// All transitions are implemented with a single atomic compare-and-swap,
// without a separate lock, so ProcessEvent is safe to call concurrently;
// the dispatcher calls it both from its callers' goroutines and from its
// background read loops.
type ConnectionStateMachine struct {
	current *int32
}

// NewConnectionStateMachine creates a state machine starting in
// Unconnected.
func NewConnectionStateMachine() *ConnectionStateMachine {
	state := int32(Unconnected)
	return &ConnectionStateMachine{current: &state}
}

// CurrentState returns the state machine's current State.
func (csm *ConnectionStateMachine) CurrentState() State {
	return State(atomic.LoadInt32(csm.current))
}

// IsConnected reports whether the state machine is in Connected.
func (csm *ConnectionStateMachine) IsConnected() bool {
	return csm.CurrentState() == Connected
}

// ProcessEvent attempts to apply e to the state machine, returning a
// BadStateError if e is not valid from the current state. Duplicate
// connect (already non-Unconnected) and duplicate disconnect (already
// Unconnected) are no-ops.
func (csm *ConnectionStateMachine) ProcessEvent(e stateEvent) error {
	switch e {
	case eventConnect:
		if atomic.CompareAndSwapInt32(csm.current, int32(Unconnected), int32(Connecting)) {
			return nil
		}
		// no-op: duplicate connect from a non-Unconnected state
		return nil
	case eventHandshakeOK:
		if !atomic.CompareAndSwapInt32(csm.current, int32(Connecting), int32(Connected)) {
			return newBadTransitionError("invalid state for successful handshake", csm.CurrentState(), Connecting, Connected)
		}
	case eventHandshakeFail:
		if !atomic.CompareAndSwapInt32(csm.current, int32(Connecting), int32(Disconnected)) {
			return newBadTransitionError("invalid state for failed handshake", csm.CurrentState(), Connecting, Disconnected)
		}
	case eventDisconnect:
		current := csm.CurrentState()
		if current == Unconnected {
			// no-op: duplicate disconnect
			return nil
		}
		atomic.StoreInt32(csm.current, int32(Disconnected))
	case eventTransportDown:
		atomic.StoreInt32(csm.current, int32(Unconnected))
	case eventClose:
		atomic.StoreInt32(csm.current, int32(Unconnected))
	default:
		return ErrUnknownEventType(e)
	}
	return nil
}

// ErrUnknownEventType is returned when ProcessEvent is given an event it
// doesn't recognize.
type ErrUnknownEventType stateEvent

func (e ErrUnknownEventType) Error() string {
	return "unknown event type (" + string(e) + ")"
}
func (e ErrUnknownEventType) Kind() Kind { return KindProtocol }
