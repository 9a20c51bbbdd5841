package gobayeux

import (
	"encoding/json"
	"testing"
)

func TestMessage_ParseError(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		want      MessageError
		shouldErr bool
	}{
		{
			name: "well formed error",
			raw:  "403:unknown_channel:Forbidden to subscribe",
			want: MessageError{Code: 403, Args: []string{"unknown_channel"}, Message: "Forbidden to subscribe"},
		},
		{
			name:      "missing segments",
			raw:       "403:Forbidden",
			shouldErr: true,
		},
		{
			name:      "non-numeric code",
			raw:       "abc:unknown_channel:Forbidden",
			shouldErr: true,
		},
		{
			name:      "empty string",
			raw:       "",
			shouldErr: true,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Error: tc.raw}
			got, err := m.ParseError()
			if tc.shouldErr {
				if err == nil {
					t.Fatal("expected an error but received none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Code != tc.want.Code || got.Message != tc.want.Message {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAdvice_Merge(t *testing.T) {
	base := DefaultAdvice()
	merged := base.Merge(Advice{Reconnect: "handshake"})

	if merged.Reconnect != "handshake" {
		t.Errorf("expected reconnect to be overridden, got %q", merged.Reconnect)
	}
	if merged.Timeout != base.Timeout {
		t.Errorf("expected timeout to be preserved when not present in the overlay, got %d", merged.Timeout)
	}
}

func TestAdvice_ShouldReconnect(t *testing.T) {
	if (Advice{Reconnect: "none"}).ShouldReconnect() {
		t.Error("expected reconnect: none to report ShouldReconnect() == false")
	}
	if !(Advice{Reconnect: "retry"}).ShouldReconnect() {
		t.Error("expected reconnect: retry to report ShouldReconnect() == true")
	}
}

func TestCloneMessage(t *testing.T) {
	original := Message{
		Channel:                  "/chat/room1",
		Data:                     json.RawMessage(`{"text":"hi"}`),
		SupportedConnectionTypes: []string{"long-polling"},
		Advice:                   &Advice{Reconnect: "retry"},
		Ext:                      map[string]interface{}{"auth": map[string]interface{}{"token": "abc"}},
	}

	clone := cloneMessage(original)
	clone.Data[2] = 'X'
	clone.SupportedConnectionTypes[0] = "websocket"
	clone.Advice.Reconnect = "none"
	clone.Ext["auth"].(map[string]interface{})["token"] = "mutated"

	if string(original.Data) == string(clone.Data) {
		t.Error("expected clone's Data mutation not to affect the original")
	}
	if original.SupportedConnectionTypes[0] == clone.SupportedConnectionTypes[0] {
		t.Error("expected clone's SupportedConnectionTypes mutation not to affect the original")
	}
	if original.Advice.Reconnect == clone.Advice.Reconnect {
		t.Error("expected clone's Advice mutation not to affect the original")
	}
	if original.Ext["auth"].(map[string]interface{})["token"] == "mutated" {
		t.Error("expected clone's Ext mutation not to affect the original")
	}
}
