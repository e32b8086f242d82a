package cache

import (
	"unshub/internal/events"
)

// subscriberID keys this cache's registrations on the bus so re-wiring is
// idempotent.
const subscriberID = "cache-manager"

// SubscribeTo wires the cache into the event bus:
//
//   - TopicAdded inserts the new configuration into the hot tier.
//   - TopicDataUpdated upserts the latest value for its topic.
//   - TopicConfigurationUpdated and TopicRemoved invalidate all tiers.
//
// The returned func unsubscribes everything; callers run it on dispose so
// the bus never holds a dead cache.
func (m *Manager) SubscribeTo(bus *events.Bus) func() {
	subs := []events.Subscription{
		bus.Subscribe(events.KindTopicAdded, subscriberID, func(e events.Event) {
			m.Warm(e.(events.TopicAddedEvent).Topic)
		}),
		bus.Subscribe(events.KindTopicDataUpdated, subscriberID, func(e events.Event) {
			evt := e.(events.TopicDataUpdatedEvent)
			m.UpsertLatest(evt.Topic, evt.DataPoint)
		}),
		bus.Subscribe(events.KindTopicConfigurationUpdated, subscriberID, func(e events.Event) {
			m.Invalidate(e.(events.TopicConfigurationUpdatedEvent).Topic.Topic)
		}),
		bus.Subscribe(events.KindTopicRemoved, subscriberID, func(e events.Event) {
			m.Invalidate(e.(events.TopicRemovedEvent).Topic)
		}),
	}

	return func() {
		for _, s := range subs {
			bus.Unsubscribe(s)
		}
	}
}
