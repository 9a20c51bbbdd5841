package bayeuxtest

import gobayeux "github.com/mwhobrey/go-faye"

// ServerOpt configures a Server at construction time.
type ServerOpt interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (opt serverOptFn) apply(s *Server) { opt(s) }

// WithHandshakeError makes every /meta/handshake request fail with a 400,
// for exercising HandshakeFailedError paths.
func WithHandshakeError(fail bool) ServerOpt {
	return serverOptFn(func(s *Server) { s.handshakeError = fail })
}

// WithSubscribeError makes every /meta/subscribe request fail, for
// exercising SubscriptionFailedError paths.
func WithSubscribeError(fail bool) ServerOpt {
	return serverOptFn(func(s *Server) { s.subscribeError = fail })
}

// WithAdvice overrides the advice sent on handshake and connect replies.
func WithAdvice(advice gobayeux.Advice) ServerOpt {
	return serverOptFn(func(s *Server) { s.advice = &advice })
}
