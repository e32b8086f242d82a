package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"unshub/internal/api"
)

func addedEvent(topic string) TopicAddedEvent {
	return TopicAddedEvent{
		Topic:     api.TopicConfiguration{Topic: topic},
		Timestamp: time.Now().UTC(),
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	var got []string
	var mu sync.Mutex

	bus.Subscribe(KindTopicAdded, "a", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a:"+e.(TopicAddedEvent).Topic.Topic)
	})
	bus.Subscribe(KindTopicAdded, "b", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b:"+e.(TopicAddedEvent).Topic.Topic)
	})

	bus.Publish(addedEvent("t1"))

	assert.Equal(t, []string{"a:t1", "b:t1"}, got)
}

func TestResubscribeSameIDIsIdempotent(t *testing.T) {
	bus := NewBus()
	count := 0

	for i := 0; i < 3; i++ {
		bus.Subscribe(KindTopicAdded, "dup", func(e Event) { count++ })
	}
	assert.Equal(t, 1, bus.SubscriberCount(KindTopicAdded))

	bus.Publish(addedEvent("t"))
	assert.Equal(t, 1, count)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()
	delivered := false

	bus.Subscribe(KindTopicAdded, "boom", func(e Event) { panic("handler exploded") })
	bus.Subscribe(KindTopicAdded, "ok", func(e Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(addedEvent("t")) })
	assert.True(t, delivered)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	count := 0
	sub := bus.Subscribe(KindTopicRemoved, "x", func(e Event) { count++ })

	bus.Publish(TopicRemovedEvent{Topic: "t", Timestamp: time.Now()})
	assert.Equal(t, 1, count)

	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub))

	bus.Publish(TopicRemovedEvent{Topic: "t", Timestamp: time.Now()})
	assert.Equal(t, 1, count)
}

func TestKindsAreIsolated(t *testing.T) {
	bus := NewBus()
	var added, removed int

	bus.Subscribe(KindTopicAdded, "a", func(e Event) { added++ })
	bus.Subscribe(KindTopicRemoved, "r", func(e Event) { removed++ })

	bus.Publish(addedEvent("t"))
	bus.Publish(addedEvent("t2"))
	bus.Publish(TopicRemovedEvent{Topic: "t", Timestamp: time.Now()})

	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
}

func TestSubscribeDuringDelivery(t *testing.T) {
	bus := NewBus()
	lateCalled := false

	bus.Subscribe(KindTopicAdded, "first", func(e Event) {
		bus.Subscribe(KindTopicAdded, "late", func(e Event) { lateCalled = true })
	})

	// The late subscriber must not observe the event that registered it.
	bus.Publish(addedEvent("t"))
	assert.False(t, lateCalled)

	bus.Publish(addedEvent("t2"))
	assert.True(t, lateCalled)
}

func TestPublishNilIsNoop(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() { bus.Publish(nil) })
}
