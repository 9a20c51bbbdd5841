package gobayeux

import "testing"

func TestDefaultExtension_Outgoing(t *testing.T) {
	ext := DefaultExtension{API: "2.0", Token: "abc"}
	m := Message{Channel: "/chat/room1"}
	ext.Outgoing(&m)

	if m.Ext["api"] != "2.0" || m.Ext["token"] != "abc" {
		t.Errorf("expected ext.api and ext.token to be set, got %+v", m.Ext)
	}
}

func TestFuncExtension_NilFuncsAreIdentity(t *testing.T) {
	ext := FuncExtension{}
	m := Message{Channel: "/chat/room1"}
	ext.Outgoing(&m)
	ext.Incoming(&m)
	if m.Channel != "/chat/room1" {
		t.Errorf("expected a nil-func extension to leave the message untouched, got %+v", m)
	}
}

func TestApplyOutgoing_RecoversPanic(t *testing.T) {
	ext := FuncExtension{OutgoingFunc: func(*Message) { panic("boom") }}
	m := Message{Channel: "/chat/room1"}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected applyOutgoing to recover the panic, but it propagated: %v", r)
		}
	}()
	applyOutgoing(ext, &m, newNullLogger())
}

func TestApplyIncoming_RecoversPanic(t *testing.T) {
	ext := FuncExtension{IncomingFunc: func(*Message) { panic("boom") }}
	m := Message{Channel: "/chat/room1"}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected applyIncoming to recover the panic, but it propagated: %v", r)
		}
	}()
	applyIncoming(ext, &m, newNullLogger())
}

func TestApplyOutgoing_NilExtension(t *testing.T) {
	m := Message{Channel: "/chat/room1"}
	applyOutgoing(nil, &m, newNullLogger())
	if m.Channel != "/chat/room1" {
		t.Error("expected a nil extension to leave the message untouched")
	}
}
