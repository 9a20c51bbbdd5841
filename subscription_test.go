package gobayeux

import (
	"encoding/json"
	"testing"
)

func TestSubscription_HandleMessage(t *testing.T) {
	var got json.RawMessage
	sub := newSubscription(nil, "/chat/room1", func(data json.RawMessage) { got = data })

	sub.handleMessage(json.RawMessage(`{"text":"hi"}`), newNullLogger())

	if string(got) != `{"text":"hi"}` {
		t.Errorf("expected callback to receive the message data, got %s", got)
	}
	if sub.MessageCount() != 1 {
		t.Errorf("expected MessageCount() == 1, got %d", sub.MessageCount())
	}
}

func TestSubscription_HandleMessage_SkipsWhenInactive(t *testing.T) {
	called := false
	sub := newSubscription(nil, "/chat/room1", func(json.RawMessage) { called = true })
	sub.deactivate()

	sub.handleMessage(json.RawMessage(`{}`), newNullLogger())

	if called {
		t.Error("expected an inactive subscription not to invoke its callback")
	}
}

func TestSubscription_HandleMessage_RecoversPanickingCallback(t *testing.T) {
	sub := newSubscription(nil, "/chat/room1", func(json.RawMessage) { panic("boom") })

	sub.handleMessage(json.RawMessage(`{}`), newNullLogger())

	if sub.ErrorCount() != 1 {
		t.Errorf("expected ErrorCount() == 1 after a panicking callback, got %d", sub.ErrorCount())
	}
	if sub.MessageCount() != 0 {
		t.Errorf("expected MessageCount() to stay 0 for a panicking delivery, got %d", sub.MessageCount())
	}
}

func TestSubscription_Cancel(t *testing.T) {
	sub := newSubscription(nil, "/chat/room1", func(json.RawMessage) {})
	if !sub.Active() {
		t.Fatal("expected a freshly created subscription to be active")
	}
	sub.Cancel()
	if sub.Active() {
		t.Error("expected Cancel to deactivate the subscription")
	}
}

func TestPublication_MarkSuccessfulIsWriteOnce(t *testing.T) {
	pub := newPublication("1", "/chat/room1", json.RawMessage(`{}`), nil)

	if err := pub.markSuccessful(); err != nil {
		t.Fatalf("unexpected error marking successful: %v", err)
	}
	if !pub.Successful() {
		t.Error("expected Successful() to be true")
	}
	if pub.CompletedAt() == nil {
		t.Error("expected CompletedAt() to be set")
	}

	if err := pub.markFailed(ErrClosed); err != ErrPublicationTerminal {
		t.Errorf("expected a second terminal transition to return ErrPublicationTerminal, got %v", err)
	}
}

func TestPublication_MarkFailed(t *testing.T) {
	pub := newPublication("1", "/chat/room1", json.RawMessage(`{}`), nil)

	if err := pub.markFailed(ErrClientNotConnected); err != nil {
		t.Fatalf("unexpected error marking failed: %v", err)
	}
	if pub.Successful() {
		t.Error("expected Successful() to be false")
	}
	if pub.Err() != ErrClientNotConnected {
		t.Errorf("expected Err() to report the failure reason, got %v", pub.Err())
	}
}
