// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"testing"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	hub := NewHub()
	first := hub.Add()
	second := hub.Add()

	hub.Publish(fleet.Event{Type: fleet.EventRemoved, Name: "w1"})

	for index, subscriber := range []*Subscriber{first, second} {
		select {
		case event := <-subscriber.Events():
			if event.Name != "w1" {
				t.Errorf("subscriber %d got %+v", index, event)
			}
		default:
			t.Errorf("subscriber %d received nothing", index)
		}
	}
}

func TestPublishTopicScopesDelivery(t *testing.T) {
	hub := NewHub()
	joined := hub.Add()
	other := hub.Add()
	topic := fleet.TaskTopic("t1")
	hub.Join(joined, topic)

	hub.PublishTopic(topic, fleet.Event{Type: fleet.EventTaskLog})

	if len(joined.Events()) != 1 {
		t.Errorf("joined subscriber buffered %d events, want 1", len(joined.Events()))
	}
	if len(other.Events()) != 0 {
		t.Errorf("unjoined subscriber received a topic event")
	}

	hub.Leave(joined, topic)
	hub.PublishTopic(topic, fleet.Event{Type: fleet.EventTaskLog})
	if len(joined.Events()) != 1 {
		t.Errorf("subscriber still receives after Leave")
	}
}

func TestOverflowFlagsResync(t *testing.T) {
	hub := NewHub()
	subscriber := hub.Add()

	for range SubscriberBufferSize {
		hub.Publish(fleet.Event{Type: fleet.EventHeartbeat})
	}
	if subscriber.TakeResync() {
		t.Fatal("resync flagged before the buffer overflowed")
	}

	hub.Publish(fleet.Event{Type: fleet.EventHeartbeat})
	if !subscriber.TakeResync() {
		t.Fatal("overflow did not flag resync")
	}
	if subscriber.TakeResync() {
		t.Error("TakeResync did not clear the flag")
	}

	hub.Drain(subscriber)
	if len(subscriber.Events()) != 0 {
		t.Errorf("Drain left %d events", len(subscriber.Events()))
	}
}

func TestRemoveStopsDelivery(t *testing.T) {
	hub := NewHub()
	subscriber := hub.Add()
	hub.Remove(subscriber)
	hub.Remove(subscriber)

	select {
	case <-subscriber.Done():
	default:
		t.Fatal("Done not closed after Remove")
	}
	hub.Publish(fleet.Event{Type: fleet.EventHeartbeat})
	hub.Offer(subscriber, fleet.Event{Type: fleet.EventHeartbeat})
	if len(subscriber.Events()) != 0 {
		t.Error("removed subscriber received events")
	}
	if hub.Count() != 0 {
		t.Errorf("Count = %d after Remove", hub.Count())
	}
}
