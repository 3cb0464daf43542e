// Package eventbus provides the in-process publish/subscribe bus that
// carries domain events between services and embedding callers. Publishing
// never blocks: each subscriber owns a bounded buffer and events that do not
// fit are dropped and counted rather than stalling the publisher.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codelore/codelore/domain/event"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Subscription is one subscriber's view of the bus. Events are read from
// Events(); the channel is closed when the subscription is cancelled or the
// bus shuts down.
type Subscription struct {
	ch             chan event.Event
	types          map[string]struct{}
	conversationID string
	dropped        atomic.Uint64
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan event.Event {
	return s.ch
}

// Dropped returns how many events were discarded because this subscriber's
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// matches reports whether the subscription wants the given event.
func (s *Subscription) matches(ev event.Event) bool {
	if s.conversationID != "" {
		switch e := ev.(type) {
		case event.MessageDelta:
			return e.ConversationID == s.conversationID
		case event.MessageComplete:
			return e.ConversationID == s.conversationID
		default:
			return false
		}
	}
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[ev.EventType()]
	return ok
}

// Bus is an in-process event bus. The zero value is not usable; construct
// with NewBus.
type Bus struct {
	logger     *slog.Logger
	bufferSize int

	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	convSeq map[string]uint64
	closed  bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an event bus with the default per-subscriber buffer size.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:     logger,
		bufferSize: DefaultBufferSize,
		subs:       make(map[*Subscription]struct{}),
		convSeq:    make(map[string]uint64),
	}
}

// WithBufferSize overrides the per-subscriber channel capacity. Applies to
// subscriptions created after the call.
func (b *Bus) WithBufferSize(n int) *Bus {
	if n > 0 {
		b.bufferSize = n
	}
	return b
}

// Subscribe registers a subscriber for the given event types. With no types
// the subscriber receives every event.
func (b *Bus) Subscribe(types ...string) *Subscription {
	sub := &Subscription{ch: make(chan event.Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.add(sub)
	return sub
}

// SubscribeConversation registers a subscriber that receives only the
// message stream (deltas and completions) of a single conversation.
func (b *Bus) SubscribeConversation(conversationID string) *Subscription {
	sub := &Subscription{
		ch:             make(chan event.Event, b.bufferSize),
		conversationID: conversationID,
	}
	b.add(sub)
	return sub
}

func (b *Bus) add(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return
	}
	b.subs[sub] = struct{}{}
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers events to all matching subscribers. Message stream events
// are stamped with a per-conversation monotonic sequence before delivery.
// Publish never blocks: a subscriber whose buffer is full loses the event,
// which is counted and logged.
func (b *Bus) Publish(_ context.Context, events ...event.Event) {
	for _, ev := range events {
		b.dispatch(b.stamp(ev))
	}
}

// stamp assigns the per-conversation sequence number to message stream
// events. Other events pass through unchanged.
func (b *Bus) stamp(ev event.Event) event.Event {
	switch e := ev.(type) {
	case event.MessageDelta:
		e.Seq = b.nextConversationSeq(e.ConversationID)
		return e
	case event.MessageComplete:
		e.Seq = b.nextConversationSeq(e.ConversationID)
		return e
	default:
		return ev
	}
}

func (b *Bus) nextConversationSeq(conversationID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.convSeq[conversationID]++
	return b.convSeq[conversationID]
}

func (b *Bus) dispatch(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.published.Add(1)

	for sub := range b.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("event dropped: subscriber buffer full",
				slog.String("event_type", ev.EventType()),
				slog.Uint64("total_dropped", b.dropped.Load()),
			)
		}
	}
}

// Published returns the total number of events accepted by the bus.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped returns the total number of events discarded across all
// subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the bus: all subscriber channels are closed and further
// publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
}
