package httpauth

import (
	"net/http"
	"testing"
)

func TestStaticTokenTransport(t *testing.T) {
	testCases := []struct {
		name              string
		url               string
		token             string
		expectedCallCount int
		shouldErr         bool
	}{
		{"Empty Token", "https://bayeux.example.com", "", 0, true},
		{"Non-empty Token", "https://bayeux.example.com", "token", 1, false},
		{"Subdomain of Host", "https://edge.bayeux.example.com", "token", 1, false},
		{"Request to unrelated host", "https://github.com", "token", 0, false},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			trt := &testRoundTripper{expectedToken: tc.token}
			transport := &StaticTokenTransport{
				Host:      "bayeux.example.com",
				Token:     tc.token,
				Transport: trt,
			}
			req, _ := http.NewRequest(http.MethodGet, tc.url, nil)
			_, err := transport.RoundTrip(req)
			if tc.shouldErr && err == nil {
				t.Fatal("expected an error but received none")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("didn't expect an error but received one: %q", err)
			}
			if want, got := tc.expectedCallCount, trt.callCount; want != got {
				t.Fatalf("expected to have called underlying transport with auth %d times but called it %d times", want, got)
			}
		})
	}
}

type testRoundTripper struct {
	callCount     int
	expectedToken string
}

func (t *testRoundTripper) RoundTrip(request *http.Request) (*http.Response, error) {
	if request.Header.Get("Authorization") == "Bearer "+t.expectedToken {
		t.callCount++
	}
	return &http.Response{}, nil
}
