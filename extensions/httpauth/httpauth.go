// Package httpauth provides an http.RoundTripper that attaches a bearer
// token to requests made against a particular Bayeux server, for use with
// gobayeux.WithHTTPTransport.
//
// An example usage looks like:
//
//	client, err := gobayeux.NewClient(serverAddress, gobayeux.WithHTTPTransport(
//		&httpauth.StaticTokenTransport{Host: "example.com", Token: myToken, Transport: http.DefaultTransport},
//	))
package httpauth

import (
	"errors"
	"net/http"
	"strings"
)

// StaticTokenTransport adds a static bearer token to every request whose
// host matches (or is a subdomain of) Host, and forwards cookies set by
// the server back on subsequent requests. Requests to any other host pass
// through Transport untouched.
type StaticTokenTransport struct {
	// Host is the server's hostname, e.g. "example.com". Requests to
	// "sub.example.com" also match.
	Host string
	// Token is the bearer token to attach via the Authorization header.
	Token string
	// Transport is the underlying http.RoundTripper; http.DefaultTransport
	// is used if nil.
	Transport http.RoundTripper

	cookies []*http.Cookie
}

// RoundTrip implements http.RoundTripper.
func (t *StaticTokenTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if !t.matchesHost(request.URL.Hostname()) {
		return transport.RoundTrip(request)
	}
	if t.Token == "" {
		return nil, errors.New("httpauth: no Token provided to StaticTokenTransport")
	}

	newRequest := deepCopyRequestWithHeaders(request)
	newRequest.Header.Set("Authorization", "Bearer "+t.Token)
	for _, cookie := range t.cookies {
		newRequest.AddCookie(cookie)
	}

	resp, err := transport.RoundTrip(newRequest)
	if err != nil {
		return resp, err
	}
	t.cookies = resp.Cookies()
	return resp, nil
}

func (t *StaticTokenTransport) matchesHost(host string) bool {
	return host == t.Host || strings.HasSuffix(host, "."+t.Host)
}

func deepCopyRequestWithHeaders(request *http.Request) *http.Request {
	newRequest := new(http.Request)
	*newRequest = *request

	newRequest.Header = make(http.Header, len(request.Header))
	for header, values := range request.Header {
		newRequest.Header[header] = append([]string(nil), values...)
	}
	return newRequest
}
