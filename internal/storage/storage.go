package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"unshub/pkg/logging"
)

// EntityType names one of the persisted entity families. The set is closed:
// every family maps to a fixed subdirectory under the data root, so there
// is never an arbitrary caller-supplied path component.
type EntityType string

const (
	EntityTopics      EntityType = "topics"
	EntityNamespaces  EntityType = "namespaces"
	EntityHierarchies EntityType = "hierarchies"
	EntityConnections EntityType = "connections"
)

func (e EntityType) known() bool {
	switch e {
	case EntityTopics, EntityNamespaces, EntityHierarchies, EntityConnections:
		return true
	}
	return false
}

// EntityStore persists hub entities as one YAML file per entity id under
// <root>/<entityType>/. Writes go through a temp file and rename so a crash
// mid-write never leaves a half-serialised entity behind; mutations happen
// on the ingestion hot path via the repositories' persister hooks.
type EntityStore struct {
	mu   sync.RWMutex
	root string
}

// NewEntityStore creates a store rooted at root. The directory tree is
// created lazily on first write.
func NewEntityStore(root string) *EntityStore {
	if root == "" {
		panic("storage: empty data root")
	}
	return &EntityStore{root: root}
}

// write marshals v and atomically replaces the entity's file.
func (s *EntityStore) write(entityType EntityType, id string, v interface{}) error {
	file, err := s.entityFile(entityType, id)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal %s/%s: %w", entityType, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: %w", err)
	}

	logging.Debug("Storage", "wrote %s/%s", entityType, id)
	return nil
}

// read unmarshals one entity into out.
func (s *EntityStore) read(entityType EntityType, id string, out interface{}) error {
	file, err := s.entityFile(entityType, id)
	if err != nil {
		return err
	}

	s.mu.RLock()
	data, err := os.ReadFile(file)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage: %s/%s not found", entityType, id)
		}
		return fmt.Errorf("storage: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("storage: unmarshal %s/%s: %w", entityType, id, err)
	}
	return nil
}

// remove deletes one entity's file. Removing an absent entity is an error
// so callers notice desynchronised state.
func (s *EntityStore) remove(entityType EntityType, id string) error {
	file, err := s.entityFile(entityType, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(file); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage: %s/%s not found", entityType, id)
		}
		return fmt.Errorf("storage: %w", err)
	}
	logging.Debug("Storage", "removed %s/%s", entityType, id)
	return nil
}

// ids lists the stored entity ids of one family. A family that was never
// written is empty, not an error.
func (s *EntityStore) ids(entityType EntityType) ([]string, error) {
	if !entityType.known() {
		return nil, fmt.Errorf("storage: unknown entity type %q", entityType)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, string(entityType)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: %w", err)
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".yaml"))
	}
	return out, nil
}

// entityFile resolves the file for (entityType, id). Ids are entity uuids
// or operator-chosen connection ids; anything that would escape the entity
// directory is rejected rather than rewritten.
func (s *EntityStore) entityFile(entityType EntityType, id string) (string, error) {
	if !entityType.known() {
		return "", fmt.Errorf("storage: unknown entity type %q", entityType)
	}
	if id == "" {
		return "", fmt.Errorf("storage: empty %s id", entityType)
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", fmt.Errorf("storage: invalid %s id %q", entityType, id)
	}
	return filepath.Join(s.root, string(entityType), id+".yaml"), nil
}
