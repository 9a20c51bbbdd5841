// Package bayeuxtest provides an in-process fake Bayeux server, usable as
// an http.RoundTripper or wrapped in an httptest.Server, for exercising
// the transports and Dispatcher without a real network round trip.
package bayeuxtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	gobayeux "github.com/mwhobrey/go-faye"
)

var (
	chars    = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmonpqrstuvwxyz0123456789")
	numChars = len(chars)

	defaultAdvice = &gobayeux.Advice{
		Reconnect: "handshake",
		Timeout:   int(30 * time.Second / time.Millisecond),
		Interval:  int(1 * time.Second / time.Millisecond),
	}
)

// Logger is the minimal logging contract Server needs, satisfied by
// *testing.T.
type Logger interface {
	Logf(format string, args ...any)
}

// Server is a fake Bayeux server implementing http.RoundTripper: it
// understands /meta/handshake, /meta/connect, /meta/subscribe,
// /meta/unsubscribe, and /meta/disconnect well enough to drive a Client
// or Dispatcher through a full session without a real HTTP server,
// optionally injecting failures via the With* ServerOpts.
type Server struct {
	log Logger

	mu   sync.Mutex
	subs map[string][]gobayeux.Channel

	handshakeError bool
	subscribeError bool
	advice         *gobayeux.Advice
}

// NewServer creates a Server. advice defaults to {reconnect: "handshake",
// interval: 1s, timeout: 30s} unless overridden with WithAdvice.
func NewServer(logger Logger, opts ...ServerOpt) *Server {
	s := &Server{
		log:    logger,
		subs:   make(map[string][]gobayeux.Channel),
		advice: defaultAdvice,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// NewHTTPTestServer wraps Server in an httptest.Server listening on a
// loopback port, for transports that need a real URL rather than a
// RoundTripper (e.g. a websocket dialer pointed at the same address
// family).
func NewHTTPTestServer(logger Logger, opts ...ServerOpt) *httptest.Server {
	s := NewServer(logger, opts...)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.RoundTrip(r)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != nil {
			_, _ = io.Copy(w, resp.Body)
		}
	}))
}

// RoundTrip implements http.RoundTripper.
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer req.Body.Close()

	var msgs []*gobayeux.Message
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body (%w)", err)
	}
	if err := json.Unmarshal(body, &msgs); err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	replies := []*gobayeux.Message{}
	statusCode := http.StatusOK

	for _, msg := range msgs {
		switch msg.Channel {
		case gobayeux.MetaHandshake:
			if s.handshakeError {
				return &http.Response{
					StatusCode: http.StatusBadRequest,
					Status:     http.StatusText(http.StatusBadRequest),
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"Invalid request"}`))),
				}, nil
			}
			replies = append(replies, &gobayeux.Message{
				Channel:                  gobayeux.MetaHandshake,
				Version:                  msg.Version,
				SupportedConnectionTypes: msg.SupportedConnectionTypes,
				ClientID:                 generateID(10),
				Successful:               true,
				AuthSuccessful:           true,
				Advice:                   s.advice,
				ID:                       msg.ID,
			})
		case gobayeux.MetaConnect:
			if channels, ok := s.subs[msg.ClientID]; ok {
				for _, ch := range channels {
					replies = append(replies, &gobayeux.Message{
						Channel:    ch,
						ID:         generateID(5),
						ClientID:   msg.ClientID,
						Data:       json.RawMessage(`{}`),
						Successful: true,
					})
				}
			}
			replies = append(replies, &gobayeux.Message{
				Channel:    gobayeux.MetaConnect,
				Successful: true,
				ClientID:   msg.ClientID,
				Advice:     s.advice,
				ID:         msg.ID,
			})
		case gobayeux.MetaSubscribe:
			if _, ok := s.subs[msg.ClientID]; !ok {
				s.subs[msg.ClientID] = make([]gobayeux.Channel, 0)
			}
			reply := &gobayeux.Message{
				Channel:      gobayeux.MetaSubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			if s.subscribeError {
				statusCode = http.StatusBadRequest
				reply.Successful = false
				reply.Error = "403::subscribe not permitted"
			}
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					statusCode = http.StatusBadRequest
					reply.Successful = false
					reply.Error = "403::already subscribed"
				}
			}
			s.subs[msg.ClientID] = append(s.subs[msg.ClientID], msg.Subscription)
			replies = append(replies, reply)
		case gobayeux.MetaUnsubscribe:
			reply := &gobayeux.Message{
				Channel:      gobayeux.MetaUnsubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			found := false
			subs := []gobayeux.Channel{}
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					found = true
					continue
				}
				subs = append(subs, ch)
			}
			s.subs[msg.ClientID] = subs
			if !found {
				statusCode = http.StatusBadRequest
				reply.Successful = false
				reply.Error = "403::not subscribed"
			}
			replies = append(replies, reply)
		case gobayeux.MetaDisconnect:
			delete(s.subs, msg.ClientID)
			replies = append(replies, &gobayeux.Message{
				Channel:    gobayeux.MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			reply := &gobayeux.Message{
				Channel:    msg.Channel,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			}
			replies = append(replies, reply)
		}
	}

	reply, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("issue marshaling body (%w)", err)
	}

	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewReader(reply)),
		Header:     make(http.Header),
	}, nil
}

func generateID(length int) string {
	ret := make([]rune, length)
	for i := range ret {
		ret[i] = chars[rand.Intn(numChars)]
	}
	return string(ret)
}
