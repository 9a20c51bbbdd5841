package gobayeux

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mwhobrey/go-faye/internal/bayeuxtest"
)

func newTestClient(t *testing.T, opts ...bayeuxtest.ServerOpt) (*Client, *bayeuxtest.Server) {
	t.Helper()
	server := bayeuxtest.NewServer(t, opts...)
	client, err := NewClient("http://bayeux.example.com/faye", WithHTTPTransport(server))
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

func TestClient_Connect(t *testing.T) {
	client, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}
	if got := client.State(); got != Connected {
		t.Errorf("expected state Connected, got %s", got)
	}
}

func TestClient_Connect_HandshakeFailure(t *testing.T) {
	client, _ := newTestClient(t, bayeuxtest.WithHandshakeError(true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("expected Connect to fail when the server rejects every handshake")
	}
}

func TestClient_SubscribeAndPublish(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}

	received := make(chan json.RawMessage, 1)
	sub, err := client.Subscribe(ctx, "/chat/room1", func(data json.RawMessage) {
		received <- data
	})
	if err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	if !sub.Active() {
		t.Error("expected a freshly established subscription to be active")
	}

	pub, err := client.Publish(ctx, "/chat/room1", map[string]string{"text": "hello"})
	if err != nil {
		t.Fatalf("unexpected error publishing: %v", err)
	}
	if !pub.Successful() {
		t.Errorf("expected the publish to succeed, got err=%v", pub.Err())
	}
}

func TestClient_Subscribe_DuplicateIsRejected(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}
	if _, err := client.Subscribe(ctx, "/chat/room1", func(json.RawMessage) {}); err != nil {
		t.Fatalf("unexpected error on first subscribe: %v", err)
	}
	if _, err := client.Subscribe(ctx, "/chat/room1", func(json.RawMessage) {}); err == nil {
		t.Fatal("expected a duplicate subscription to be rejected by the fake server")
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}
	sub, err := client.Subscribe(ctx, "/chat/room1", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	if err := client.Unsubscribe(ctx, "/chat/room1"); err != nil {
		t.Fatalf("unexpected error unsubscribing: %v", err)
	}
	if sub.Active() {
		t.Error("expected Unsubscribe to deactivate the local subscription")
	}
}

func TestClient_Disconnect(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("unexpected error disconnecting: %v", err)
	}
}

func TestClient_OperationsAfterClose(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	if err := client.Connect(context.Background()); err != ErrClosed {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("expected a second Close to be a no-op, got %v", err)
	}
}
