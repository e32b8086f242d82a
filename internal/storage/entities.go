package storage

import (
	"unshub/internal/api"
)

// The typed accessors below are what the registries plug into: EntityStore
// satisfies hierarchy.Persister and topics.Persister, and the app restores
// all families at bootstrap through the Load* methods.

// SaveTopic persists one topic configuration under its id.
func (s *EntityStore) SaveTopic(t api.TopicConfiguration) error {
	return s.write(EntityTopics, t.ID, t)
}

// DeleteTopic removes one persisted topic configuration.
func (s *EntityStore) DeleteTopic(id string) error {
	return s.remove(EntityTopics, id)
}

// LoadTopics reads back all persisted topic configurations.
func (s *EntityStore) LoadTopics() ([]api.TopicConfiguration, error) {
	return loadAll[api.TopicConfiguration](s, EntityTopics)
}

// SaveNamespace persists one namespace node under its id.
func (s *EntityStore) SaveNamespace(n api.NamespaceNode) error {
	return s.write(EntityNamespaces, n.ID, n)
}

// DeleteNamespace removes one persisted namespace node.
func (s *EntityStore) DeleteNamespace(id string) error {
	return s.remove(EntityNamespaces, id)
}

// LoadNamespaces reads back all persisted namespace nodes.
func (s *EntityStore) LoadNamespaces() ([]api.NamespaceNode, error) {
	return loadAll[api.NamespaceNode](s, EntityNamespaces)
}

// SaveHierarchyConfiguration persists one hierarchy configuration.
func (s *EntityStore) SaveHierarchyConfiguration(cfg api.HierarchyConfiguration) error {
	return s.write(EntityHierarchies, cfg.ID, cfg)
}

// DeleteHierarchyConfiguration removes one persisted hierarchy
// configuration.
func (s *EntityStore) DeleteHierarchyConfiguration(id string) error {
	return s.remove(EntityHierarchies, id)
}

// LoadHierarchyConfigurations reads back all persisted hierarchy
// configurations.
func (s *EntityStore) LoadHierarchyConfigurations() ([]api.HierarchyConfiguration, error) {
	return loadAll[api.HierarchyConfiguration](s, EntityHierarchies)
}

// SaveConnection persists one connection configuration.
func (s *EntityStore) SaveConnection(cfg api.ConnectionConfiguration) error {
	return s.write(EntityConnections, cfg.ID, cfg)
}

// DeleteConnection removes one persisted connection configuration.
func (s *EntityStore) DeleteConnection(id string) error {
	return s.remove(EntityConnections, id)
}

// LoadConnections reads back all persisted connection configurations.
func (s *EntityStore) LoadConnections() ([]api.ConnectionConfiguration, error) {
	return loadAll[api.ConnectionConfiguration](s, EntityConnections)
}

// loadAll reads every entity of one family.
func loadAll[T any](s *EntityStore, entityType EntityType) ([]T, error) {
	ids, err := s.ids(entityType)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := s.read(entityType, id, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
