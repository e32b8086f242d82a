package events

import (
	"time"

	"unshub/internal/api"
)

// Kind identifies the runtime type of a domain event. Subscriptions are
// keyed by kind; dispatch never inspects event payloads.
type Kind string

const (
	KindTopicAdded                Kind = "TopicAdded"
	KindTopicDataUpdated          Kind = "TopicDataUpdated"
	KindTopicConfigurationUpdated Kind = "TopicConfigurationUpdated"
	KindTopicRemoved              Kind = "TopicRemoved"
	KindAutoMappingFailed         Kind = "AutoMappingFailed"
	KindConnectionStatus          Kind = "ConnectionStatus"
)

// Event is the common surface of all domain events.
type Event interface {
	EventKind() Kind
	OccurredAt() time.Time
}

// TopicAddedEvent announces a newly registered topic configuration, or a
// namespace node materialised by the auto-mapper.
type TopicAddedEvent struct {
	Topic     api.TopicConfiguration
	Namespace *api.NamespaceNode // set when a namespace was materialised alongside
	Timestamp time.Time
}

func (e TopicAddedEvent) EventKind() Kind       { return KindTopicAdded }
func (e TopicAddedEvent) OccurredAt() time.Time { return e.Timestamp }

// TopicDataUpdatedEvent announces a processed data point for a topic.
type TopicDataUpdatedEvent struct {
	Topic     string
	DataPoint api.DataPoint
	Timestamp time.Time
}

func (e TopicDataUpdatedEvent) EventKind() Kind       { return KindTopicDataUpdated }
func (e TopicDataUpdatedEvent) OccurredAt() time.Time { return e.Timestamp }

// TopicConfigurationUpdatedEvent announces a mutated topic configuration.
type TopicConfigurationUpdatedEvent struct {
	Topic     api.TopicConfiguration
	Timestamp time.Time
}

func (e TopicConfigurationUpdatedEvent) EventKind() Kind       { return KindTopicConfigurationUpdated }
func (e TopicConfigurationUpdatedEvent) OccurredAt() time.Time { return e.Timestamp }

// TopicRemovedEvent announces a deleted topic configuration.
type TopicRemovedEvent struct {
	Topic      string
	SourceType string
	Timestamp  time.Time
}

func (e TopicRemovedEvent) EventKind() Kind       { return KindTopicRemoved }
func (e TopicRemovedEvent) OccurredAt() time.Time { return e.Timestamp }

// AutoMappingFailedEvent surfaces a below-threshold or disallowed mapping
// with suggestions for operator triage.
type AutoMappingFailedEvent struct {
	Topic       string
	SourceType  string
	Score       float64
	Reason      string
	Suggestions []string
	Timestamp   time.Time
}

func (e AutoMappingFailedEvent) EventKind() Kind       { return KindAutoMappingFailed }
func (e AutoMappingFailedEvent) OccurredAt() time.Time { return e.Timestamp }

// ConnectionStatusEvent mirrors a connection state transition onto the bus.
type ConnectionStatusEvent struct {
	Status    api.StatusChange
	Timestamp time.Time
}

func (e ConnectionStatusEvent) EventKind() Kind       { return KindConnectionStatus }
func (e ConnectionStatusEvent) OccurredAt() time.Time { return e.Timestamp }
