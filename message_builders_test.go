package gobayeux

import "testing"

func TestHandshakeRequestBuilder_AddSupportedConnectionType(t *testing.T) {
	testCases := []struct {
		name      string
		ct        string
		shouldErr bool
	}{
		{"valid long-polling", "long-polling", false},
		{"valid callback-polling", "callback-polling", false},
		{"valid websocket", "websocket", false},
		{"valid iframe", "iframe", false},
		{"invalid connection type", "invalid-polling", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := NewHandshakeRequestBuilder()
			err := b.AddSupportedConnectionType(tc.ct)
			if err != nil && !tc.shouldErr {
				t.Errorf("expected connection type %s to be valid but got err %q", tc.ct, err)
			}
			if err == nil && tc.shouldErr {
				t.Error("expected an error but didn't get one")
			}
		})
	}
}

func TestHandshakeRequestBuilder_AddSupportedConnectionType_dedups(t *testing.T) {
	b := NewHandshakeRequestBuilder()
	_ = b.AddSupportedConnectionType("long-polling")
	_ = b.AddSupportedConnectionType("long-polling")
	if len(b.supportedConnectionTypes) != 1 {
		t.Errorf("expected duplicate connection types to be collapsed, got %v", b.supportedConnectionTypes)
	}
}

func TestHandshakeRequestBuilder_AddVersion(t *testing.T) {
	testCases := []struct {
		name      string
		version   string
		shouldErr bool
	}{
		{"valid version 1.0", "1.0", false},
		{"valid version 1.0beta", "1.0beta", false},
		{"valid version 10.0", "10.0", false},
		{"invalid version .0", ".0", true},
		{"invalid version a.0", "a.0", true},
		{"invalid version (empty)", "", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := NewHandshakeRequestBuilder()
			err := b.AddVersion(tc.version)
			if err != nil && !tc.shouldErr {
				t.Errorf("expected version %s to be valid but got err %q", tc.version, err)
			}
			if err == nil && tc.shouldErr {
				t.Error("expected an error but didn't get one")
			}
		})
	}
}

func TestHandshakeRequestBuilder_Build(t *testing.T) {
	b := NewHandshakeRequestBuilder()
	if _, err := b.Build(); err != ErrNoSupportedConnectionTypes {
		t.Errorf("expected ErrNoSupportedConnectionTypes, got %v", err)
	}

	_ = b.AddSupportedConnectionType(ConnectionTypeLongPolling)
	if _, err := b.Build(); err != ErrNoVersion {
		t.Errorf("expected ErrNoVersion, got %v", err)
	}

	_ = b.AddVersion(BayeuxVersion)
	b.AddExt("token", "abc123")
	ms, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(ms))
	}
	if ms[0].Channel != MetaHandshake {
		t.Errorf("expected channel %q, got %q", MetaHandshake, ms[0].Channel)
	}
	if ms[0].Ext["token"] != "abc123" {
		t.Errorf("expected ext.token to be set, got %v", ms[0].Ext)
	}
}

func TestConnectRequestBuilder_Build(t *testing.T) {
	b := NewConnectRequestBuilder()
	if _, err := b.Build(); err != ErrMissingClientID {
		t.Errorf("expected ErrMissingClientID, got %v", err)
	}

	b.AddClientID("client-1")
	if _, err := b.Build(); err != ErrMissingConnectionType {
		t.Errorf("expected ErrMissingConnectionType, got %v", err)
	}

	if err := b.AddConnectionType("bogus"); err == nil {
		t.Error("expected an error for an unrecognized connection type")
	}
	_ = b.AddConnectionType(ConnectionTypeLongPolling)
	ms, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms[0].ClientID != "client-1" || ms[0].ConnectionType != ConnectionTypeLongPolling {
		t.Errorf("unexpected message built: %+v", ms[0])
	}
}

func TestSubscribeRequestBuilder_Build(t *testing.T) {
	b := NewSubscribeRequestBuilder()
	b.AddClientID("client-1")
	if err := b.AddSubscription("not valid"); err == nil {
		t.Error("expected an invalid channel to be rejected")
	}
	_ = b.AddSubscription("/chat/room1")
	_ = b.AddSubscription("/chat/room1")
	_ = b.AddSubscription("/chat/room2")

	ms, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("expected deduplicated subscriptions to produce 2 messages, got %d", len(ms))
	}
	for _, m := range ms {
		if m.Channel != MetaSubscribe {
			t.Errorf("expected channel %q, got %q", MetaSubscribe, m.Channel)
		}
	}
}

func TestDisconnectRequestBuilder_Build(t *testing.T) {
	b := NewDisconnectRequestBuilder()
	if _, err := b.Build(); err != ErrMissingClientID {
		t.Errorf("expected ErrMissingClientID, got %v", err)
	}
	b.AddClientID("client-1")
	ms, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms[0].Channel != MetaDisconnect {
		t.Errorf("expected channel %q, got %q", MetaDisconnect, ms[0].Channel)
	}
}
