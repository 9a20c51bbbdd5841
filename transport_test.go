package gobayeux

import "testing"

func TestExtractBayeuxMessage(t *testing.T) {
	testCases := []struct {
		name      string
		input     interface{}
		shouldErr bool
	}{
		{"map", map[string]interface{}{"channel": "/meta/handshake"}, false},
		{"non-empty array", []interface{}{map[string]interface{}{"channel": "/meta/handshake"}}, false},
		{"empty array", []interface{}{}, true},
		{"array of non-objects", []interface{}{"nope"}, true},
		{"json string", `{"channel":"/meta/handshake"}`, false},
		{"unparseable string", `not json`, true},
		{"unexpected shape", 42, true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			_, err := extractBayeuxMessage(tc.input)
			if tc.shouldErr && err == nil {
				t.Fatal("expected an error but received none")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
