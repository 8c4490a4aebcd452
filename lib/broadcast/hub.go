// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast fans fleet events out to observer streams.
//
// Each Subscriber owns a buffered channel. Publishing never blocks: an
// event that does not fit in a subscriber's buffer is dropped and the
// subscriber is flagged for resync. The stream writer checks the flag
// and replaces the subscriber's view with a fresh snapshot (see
// state.Store.Resync), so a slow observer degrades to snapshot
// refreshes instead of stalling the controller.
//
// Events published to a topic (task log lines, "task:<id>") reach only
// subscribers that joined the topic. Everything else reaches every
// subscriber.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// SubscriberBufferSize is the per-subscriber channel capacity. It must
// absorb a burst of stats deltas from a full fleet between two writer
// wakeups.
const SubscriberBufferSize = 256

// Subscriber is one observer stream's registration.
type Subscriber struct {
	channel chan fleet.Event
	resync  atomic.Bool
	done    chan struct{}
	once    sync.Once

	// topics is guarded by Hub.mu.
	topics map[string]struct{}
}

// Events returns the subscriber's event channel. It is never closed;
// readers select on it together with Done or their own context.
func (s *Subscriber) Events() <-chan fleet.Event { return s.channel }

// Done is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// TakeResync reports whether events were dropped since the last call,
// clearing the flag.
func (s *Subscriber) TakeResync() bool {
	return s.resync.CompareAndSwap(true, false)
}

// Hub is the subscriber registry.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

// Add registers a new subscriber. Callers that need the first frame to
// be a snapshot register through state.Store.Subscribe instead, which
// calls Add and Offer under the store lock.
func (h *Hub) Add() *Subscriber {
	subscriber := &Subscriber{
		channel: make(chan fleet.Event, SubscriberBufferSize),
		done:    make(chan struct{}),
		topics:  make(map[string]struct{}),
	}
	h.mu.Lock()
	h.subscribers[subscriber] = struct{}{}
	h.mu.Unlock()
	return subscriber
}

// Remove unregisters the subscriber and closes its Done channel. Safe
// to call more than once.
func (h *Hub) Remove(subscriber *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, subscriber)
	h.mu.Unlock()
	subscriber.once.Do(func() { close(subscriber.done) })
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Join adds the subscriber to a topic.
func (h *Hub) Join(subscriber *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subscriber.topics[topic] = struct{}{}
}

// Leave removes the subscriber from a topic.
func (h *Hub) Leave(subscriber *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(subscriber.topics, topic)
}

// Publish delivers event to every subscriber.
func (h *Hub) Publish(event fleet.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subscriber := range h.subscribers {
		offer(subscriber, event)
	}
}

// PublishTopic delivers event to the subscribers that joined topic.
func (h *Hub) PublishTopic(topic string, event fleet.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subscriber := range h.subscribers {
		if _, joined := subscriber.topics[topic]; joined {
			offer(subscriber, event)
		}
	}
}

// Offer delivers event to one subscriber.
func (h *Hub) Offer(subscriber *Subscriber, event fleet.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	offer(subscriber, event)
}

// Drain discards every buffered event of the subscriber.
func (h *Hub) Drain(subscriber *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		select {
		case <-subscriber.channel:
		default:
			return
		}
	}
}

// offer is a non-blocking send. Must be called with h.mu held.
func offer(subscriber *Subscriber, event fleet.Event) {
	select {
	case <-subscriber.done:
		return
	default:
	}
	select {
	case subscriber.channel <- event:
	default:
		subscriber.resync.Store(true)
	}
}
