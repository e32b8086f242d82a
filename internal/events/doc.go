// Package events wires the hub's subsystems together with an in-process,
// typed publish/subscribe bus.
//
// Producers publish domain events (TopicAdded, TopicDataUpdated,
// TopicConfigurationUpdated, TopicRemoved, AutoMappingFailed,
// ConnectionStatus); consumers subscribe by kind under a stable id.
// Delivery is synchronous, at-most-once and not persisted. Events of the
// same kind published from one call site arrive in publish order; no
// ordering is promised across kinds.
//
// Handlers that need to do real work (persistence, downstream publishes)
// must hand the event to the queue processor instead of blocking the bus.
package events
