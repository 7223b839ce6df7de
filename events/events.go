// Package events provides the observability feed for the MEV-protection
// core. Every state transition the protocol defines is published here with
// the entity id and the minimal fields needed to reconstruct state without
// replaying history.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event published on the feed.
type Type string

// Event types, one per observable state transition.
const (
	// Keyper registry.
	KeyperRegistered  Type = "keyper.registered"
	KeyperDeactivated Type = "keyper.deactivated"
	KeyperSlashed     Type = "keyper.slashed"
	StakeWithdrawn    Type = "keyper.stakeWithdrawn"

	// DKG ceremony.
	DKGStarted   Type = "dkg.started"
	DKGAdvanced  Type = "dkg.advanced"
	DKGFinalized Type = "dkg.finalized"
	DKGAborted   Type = "dkg.aborted"
	KeyRevoked   Type = "dkg.keyRevoked"

	// Encrypted transaction lifecycle.
	TxSubmitted Type = "tx.submitted"
	TxCancelled Type = "tx.cancelled"
	TxOrdered   Type = "tx.ordered"
	TxDecrypted Type = "tx.decrypted"
	TxExecuted  Type = "tx.executed"
	TxExpired   Type = "tx.expired"

	// Ordering attestations.
	OrderingCommitted Type = "ordering.committed"
	PositionVerified  Type = "ordering.positionVerified"

	// Forced inclusion.
	ForceRequested Type = "force.requested"
	ForceIncluded  Type = "force.included"
	ForceExpired   Type = "force.expired"
	ForceClaimed   Type = "force.claimed"
)

// Event is a message published on the feed.
type Event struct {
	Type      Type
	Data      interface{}
	Timestamp time.Time
}

// Subscription receives events matching a set of types on the Feed.
type Subscription struct {
	id     uint64
	types  map[Type]struct{}
	ch     chan Event
	feed   *Feed
	closed atomic.Bool
}

// Chan returns a read-only channel delivering matching events.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes this subscription from the feed and closes its
// channel. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.feed != nil {
		s.feed.Unsubscribe(s)
	}
}

// Feed is a publish/subscribe event feed. All methods are safe for
// concurrent use.
type Feed struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewFeed creates a Feed. bufferSize controls each subscription's channel
// buffer; use 0 for unbuffered channels.
func NewFeed(bufferSize int) *Feed {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Feed{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe creates a subscription receiving events matching any of the
// given types. With no types it matches everything.
func (f *Feed) Subscribe(types ...Type) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub := &Subscription{
			ch:    make(chan Event),
			types: make(map[Type]struct{}),
		}
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}

	f.nextID++
	typeSet := make(map[Type]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}
	sub := &Subscription{
		id:    f.nextID,
		types: typeSet,
		ch:    make(chan Event, f.bufferSize),
		feed:  f,
	}
	f.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the given subscription and closes its channel.
// Safe to call multiple times or with nil.
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}
	f.mu.Lock()
	delete(f.subs, sub.id)
	f.mu.Unlock()
	close(sub.ch)
}

// Publish delivers an event to all matching subscribers without blocking.
// If a subscriber's channel is full the event is dropped for that
// subscriber; state machines must never stall on observers.
func (f *Feed) Publish(t Type, data interface{}) {
	event := Event{
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for _, sub := range f.subs {
		if sub.closed.Load() {
			continue
		}
		if len(sub.types) > 0 {
			if _, ok := sub.types[t]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts down the feed and closes every subscription channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
		delete(f.subs, id)
	}
}
