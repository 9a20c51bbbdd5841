package gobayeux

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mwhobrey/go-faye/internal/bayeuxtest"
)

func TestHTTPTransport_Connect(t *testing.T) {
	server := bayeuxtest.NewServer(t)
	client := &http.Client{Transport: server}

	transport, err := NewHTTPTransport(client, func() string { return "" }, newNullLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing transport: %v", err)
	}
	defer transport.Close()

	if err := transport.Connect(context.Background(), "http://bayeux.example.com/faye", nil); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}
	if !transport.Connected() {
		t.Error("expected transport to report Connected() == true")
	}
}

func TestHTTPTransport_Connect_HandshakeError(t *testing.T) {
	server := bayeuxtest.NewServer(t, bayeuxtest.WithHandshakeError(true))
	client := &http.Client{Transport: server}

	transport, err := NewHTTPTransport(client, func() string { return "" }, newNullLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing transport: %v", err)
	}
	defer transport.Close()

	if err := transport.Connect(context.Background(), "http://bayeux.example.com/faye", nil); err == nil {
		t.Fatal("expected Connect to fail when the server rejects the handshake probe")
	}
}

func TestHTTPTransport_SendBatch(t *testing.T) {
	server := bayeuxtest.NewServer(t)
	client := &http.Client{Transport: server}
	var clientID string

	transport, err := NewHTTPTransport(client, func() string { return clientID }, newNullLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing transport: %v", err)
	}
	defer transport.Close()

	if err := transport.Connect(context.Background(), "http://bayeux.example.com/faye", nil); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}

	frames := transport.Messages()

	handshake := &Message{Channel: MetaHandshake, Version: BayeuxVersion, SupportedConnectionTypes: []string{ConnectionTypeLongPolling}}
	if err := transport.SendBatch(context.Background(), []*Message{handshake}); err != nil {
		t.Fatalf("unexpected error sending batch: %v", err)
	}

	select {
	case f := <-frames:
		if f.Message.Channel != MetaHandshake || !f.Message.Successful {
			t.Errorf("expected a successful handshake reply, got %+v", f.Message)
		}
		clientID = f.Message.ClientID
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a reply frame")
	}

	if clientID == "" {
		t.Fatal("expected the fake server to assign a clientID")
	}
}

// emptyArrayRoundTripper always answers with a 200 and an empty JSON
// array body, the shape a Bayeux server is never supposed to send on its
// own in response to a request.
type emptyArrayRoundTripper struct{}

func (emptyArrayRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(`[]`)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestHTTPTransport_SendBatch_EmptyResponseArrayFailsFast(t *testing.T) {
	client := &http.Client{Transport: emptyArrayRoundTripper{}}

	transport, err := NewHTTPTransport(client, func() string { return "" }, newNullLogger())
	if err != nil {
		t.Fatalf("unexpected error constructing transport: %v", err)
	}
	defer transport.Close()

	if err := transport.Connect(context.Background(), "http://bayeux.example.com/faye", nil); err != nil {
		t.Fatalf("unexpected error connecting: %v", err)
	}

	handshake := &Message{Channel: MetaHandshake, Version: BayeuxVersion, SupportedConnectionTypes: []string{ConnectionTypeLongPolling}}
	if err := transport.SendBatch(context.Background(), []*Message{handshake}); err == nil {
		t.Fatal("expected SendBatch to fail fast on an empty response array instead of silently swallowing it")
	}
}

func TestDecodeBayeuxMessages(t *testing.T) {
	arr, err := decodeBayeuxMessages([]byte(`[{"channel":"/meta/handshake","successful":true}]`))
	if err != nil || len(arr) != 1 {
		t.Fatalf("expected to decode an array response, got %v, %v", arr, err)
	}

	single, err := decodeBayeuxMessages([]byte(`{"channel":"/meta/handshake","successful":true}`))
	if err != nil || len(single) != 1 {
		t.Fatalf("expected to decode a bare object response, got %v, %v", single, err)
	}
}

func TestDecodeBayeuxMessages_EmptyArrayIsAnError(t *testing.T) {
	if _, err := decodeBayeuxMessages([]byte(`[]`)); err == nil {
		t.Fatal("expected an empty response array to be rejected as a network error, not silently decoded")
	}
}

func TestStripJSONPWrapper(t *testing.T) {
	wrapped := []byte(`callback123([{"channel":"/meta/handshake"}])`)
	got := stripJSONPWrapper(wrapped, "callback123")
	want := `[{"channel":"/meta/handshake"}]`
	if string(got) != want {
		t.Errorf("stripJSONPWrapper() = %s, want %s", got, want)
	}

	unwrapped := []byte(`[{"channel":"/meta/handshake"}]`)
	if got := stripJSONPWrapper(unwrapped, "callback123"); string(got) != string(unwrapped) {
		t.Errorf("expected an unwrapped body to pass through unchanged, got %s", got)
	}
}
