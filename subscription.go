package gobayeux

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SubscriptionCallback receives the Data payload of every message
// delivered to a Subscription.
type SubscriptionCallback func(data json.RawMessage)

// Subscription represents one active channel or pattern subscription.
// It is created by Client.Subscribe on a successful /meta/subscribe and
// destroyed by Cancel or Client.Unsubscribe. Its counters are mutated
// only via handleMessage/handleError.
type Subscription struct {
	// ID is an opaque identifier for this subscription.
	ID string
	// Channel is the channel or pattern this subscription matches
	// against.
	Channel Channel
	// CreatedAt is when the subscription was established.
	CreatedAt time.Time

	callback SubscriptionCallback
	client   *Client

	mu       sync.RWMutex
	active   bool
	lastUsed time.Time

	messageCount uint64
	errorCount   uint64
}

func newSubscription(client *Client, channel Channel, callback SubscriptionCallback) *Subscription {
	now := time.Now()
	return &Subscription{
		ID:        uuid.NewString(),
		Channel:   channel,
		CreatedAt: now,
		lastUsed:  now,
		active:    true,
		callback:  callback,
		client:    client,
	}
}

// Active reports whether the subscription still receives messages. A
// Subscription with Active()==false never invokes its callback.
func (s *Subscription) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// LastUsed returns the time of the subscription's most recent delivered
// message.
func (s *Subscription) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// MessageCount returns the number of messages successfully delivered to
// this subscription's callback.
func (s *Subscription) MessageCount() uint64 { return atomic.LoadUint64(&s.messageCount) }

// ErrorCount returns the number of times this subscription's callback
// panicked or otherwise errored during delivery.
func (s *Subscription) ErrorCount() uint64 { return atomic.LoadUint64(&s.errorCount) }

// Cancel deactivates the subscription so it stops receiving messages and
// removes it from its Client's registry. It does not unsubscribe from the
// server; call Client.Unsubscribe for that.
func (s *Subscription) Cancel() {
	s.deactivate()
	if s.client != nil {
		s.client.removeSubscription(s)
	}
}

// deactivate flips the subscription inactive without touching its
// client's registry, so callers already holding the client's registry
// lock (Client.Close) can use it without deadlocking on Cancel.
func (s *Subscription) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// handleMessage delivers data to the subscription's callback if active,
// recovering a panicking callback and counting it as an error so fan-out
// to other subscriptions is never interrupted.
func (s *Subscription) handleMessage(data json.RawMessage, logger Logger) {
	if !s.Active() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.handleError()
			if logger != nil {
				logger.Warn("subscription callback panicked", "channel", s.Channel, "recovered", r)
			}
		}
	}()

	s.callback(data)

	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
	atomic.AddUint64(&s.messageCount, 1)
}

// handleError increments the subscription's error counter.
func (s *Subscription) handleError() {
	atomic.AddUint64(&s.errorCount, 1)
}

// Publication represents the outcome of a single Client.Publish call. It
// is write-once after reaching a terminal state (Successful or a non-nil
// Err).
type Publication struct {
	ID              string
	Channel         Channel
	Data            json.RawMessage
	Ext             map[string]interface{}
	CreatedAt       time.Time
	SubscriberCount int

	mu          sync.Mutex
	completedAt *time.Time
	successful  bool
	err         error
	done        bool
}

func newPublication(id string, channel Channel, data json.RawMessage, ext map[string]interface{}) *Publication {
	return &Publication{
		ID:        id,
		Channel:   channel,
		Data:      data,
		Ext:       ext,
		CreatedAt: time.Now(),
	}
}

// Successful reports whether the publish completed successfully.
func (p *Publication) Successful() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successful
}

// Err returns the failure reason, or nil if the publish succeeded or has
// not yet completed.
func (p *Publication) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// CompletedAt returns when the publish reached a terminal state, or nil
// if it has not yet completed.
func (p *Publication) CompletedAt() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completedAt
}

// markSuccessful transitions the publication to a successful terminal
// state. It is a no-op (returns ErrPublicationTerminal) if already
// terminal: a Publication's outcome is write-once.
func (p *Publication) markSuccessful() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return ErrPublicationTerminal
	}
	now := time.Now()
	p.successful = true
	p.completedAt = &now
	p.done = true
	return nil
}

// markFailed transitions the publication to a failed terminal state. It
// is a no-op (returns ErrPublicationTerminal) if already terminal.
func (p *Publication) markFailed(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return ErrPublicationTerminal
	}
	now := time.Now()
	p.err = err
	p.completedAt = &now
	p.done = true
	return nil
}
