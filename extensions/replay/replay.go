// Package replay implements the CometD replay extension: it tags outbound
// handshake and subscribe messages with the replay IDs the server last sent
// on each channel, so a server that supports it can resume a subscription
// from where this client last saw it rather than from "now".
package replay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	gobayeux "github.com/mwhobrey/go-faye"
)

const (
	// ExtensionName is the key this extension's data is carried under in
	// a message's ext bag.
	ExtensionName string = "replay"
	eventKey      string = "event"
	replayIDKey   string = "replayId"

	unsupported int32 = iota
	supported
)

// Extension attaches replay-ID bookkeeping to every handshake, subscribe,
// unsubscribe, and broadcast message that passes through it.
type Extension struct {
	supportedByServer *int32
	store             IDStore
}

// IDStore stores the last replay ID this client observed per channel.
type IDStore interface {
	Set(channel string, replayID int)
	Get(channel string) (int, bool)
	Delete(channel string)
	AsMap() map[string]int
}

// New creates an Extension backed by store. A fresh *MapStorage is used if
// store is nil.
func New(store IDStore) *Extension {
	if store == nil {
		store = NewMapStorage()
	}
	defaultVal := unsupported
	return &Extension{supportedByServer: &defaultVal, store: store}
}

// Outgoing implements gobayeux.Extension.
func (e *Extension) Outgoing(m *gobayeux.Message) {
	switch m.Channel {
	case gobayeux.MetaHandshake:
		ext := m.GetExt(true)
		ext[ExtensionName] = true
	case gobayeux.MetaSubscribe:
		if e.isSupported() {
			ext := m.GetExt(true)
			ext[ExtensionName] = e.store.AsMap()
		}
	}
}

// Incoming implements gobayeux.Extension.
func (e *Extension) Incoming(m *gobayeux.Message) {
	switch m.Channel.Type() {
	case gobayeux.MetaChannel:
		switch m.Channel {
		case gobayeux.MetaHandshake:
			ext := m.GetExt(false)
			if ext == nil {
				return
			}
			if isSupported, ok := ext[ExtensionName].(bool); ok && isSupported {
				atomic.CompareAndSwapInt32(e.supportedByServer, unsupported, supported)
			}
		case gobayeux.MetaUnsubscribe:
			e.store.Delete(string(m.Subscription))
		}
	case gobayeux.BroadcastChannel:
		e.updateReplayID(m)
	}
}

// IsSupported reports whether the server acknowledged the replay extension
// during handshake.
func (e *Extension) IsSupported() bool { return e.isSupported() }

// Store exposes the underlying IDStore, for inspecting or pre-seeding
// replay IDs before a subscribe.
func (e *Extension) Store() IDStore { return e.store }

func (e *Extension) isSupported() bool {
	return atomic.LoadInt32(e.supportedByServer) == supported
}

func (e *Extension) updateReplayID(m *gobayeux.Message) {
	var md MessageData
	if err := json.Unmarshal(m.Data, &md); err != nil {
		return
	}

	data := make(map[string]interface{})
	if err := json.Unmarshal([]byte(md.Data), &data); err != nil {
		return
	}
	event, ok := data[eventKey].(map[string]interface{})
	if !ok {
		return
	}
	replayIDVal, ok := event[replayIDKey].(float64)
	if !ok {
		return
	}
	e.store.Set(string(m.Channel), int(replayIDVal))
}

// MessageData is the envelope CometD's binary-data convention wraps event
// payloads in.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_binary_data
type MessageData struct {
	Data string            `json:"data,omitempty"`
	Last bool              `json:"last,omitempty"`
	Meta map[string]string `json:"meta,omitempty"`
}

// MapStorage is an in-memory IDStore guarded by an RWMutex.
type MapStorage struct {
	mu    sync.RWMutex
	store map[string]int
}

// NewMapStorage creates an empty MapStorage.
func NewMapStorage() *MapStorage {
	return &MapStorage{store: make(map[string]int)}
}

// Set implements IDStore.
func (s *MapStorage) Set(channel string, replayID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[channel] = replayID
}

// Get implements IDStore.
func (s *MapStorage) Get(channel string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	replayID, ok := s.store[channel]
	return replayID, ok
}

// Delete implements IDStore.
func (s *MapStorage) Delete(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, channel)
}

// AsMap implements IDStore, returning a defensive copy.
func (s *MapStorage) AsMap() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.store))
	for k, v := range s.store {
		out[k] = v
	}
	return out
}
