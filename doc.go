// Package gobayeux provides a client for the Bayeux publish/subscribe
// protocol (https://docs.cometd.org/current/reference/#_bayeux), a
// JSON-over-HTTP/WebSocket wire protocol for channel-based real-time
// messaging.
//
// The best way to create a client is with NewClient. Given a server
// address, a client can be created like so:
//
//	serverAddress := "https://localhost:8080/"
//	client, err := gobayeux.NewClient(serverAddress)
//
// Callers subscribe to a channel or pattern with a callback that receives
// each message's data:
//
//	sub, err := client.Subscribe(ctx, "/chat/room1", func(data json.RawMessage) {
//		fmt.Println(string(data))
//	})
//
// Extensions that want to rewrite outbound and inbound envelopes implement
// the Extension interface and are installed with SetExtension:
//
//	type Example struct{}
//	func (Example) Outgoing(m *Message) { m.GetExt(true)["example"] = true }
//	func (Example) Incoming(m *Message) {}
//
//	client.SetExtension(Example{})
//
// A custom *http.Transport (for TLS configuration, proxies, or
// authentication decorators such as extensions/httpauth) can be supplied
// with WithHTTPTransport. WithTransport names the registered connection
// type (for example ConnectionTypeWebsocket) that Connect uses, and
// SetTransport switches to another one later.
package gobayeux
