package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"unshub/internal/api"
	"unshub/internal/events"
	"unshub/pkg/logging"
)

// Persister stores topic configurations durably. A nil persister keeps the
// repository memory-only.
type Persister interface {
	SaveTopic(t api.TopicConfiguration) error
	DeleteTopic(id string) error
}

// Repository is the registry of known topics, verified or unverified. One
// active configuration exists per (topic, sourceType) pair; topic matching
// is case-insensitive.
//
// Every mutation emits the matching domain event on the bus after the
// repository state is updated, so bus subscribers always observe the new
// state when they read back.
type Repository struct {
	mu    sync.RWMutex
	byKey map[string]api.TopicConfiguration // key: lower(topic) + "\x00" + sourceType
	byID  map[string]string                 // id -> key

	bus       *events.Bus
	persister Persister
}

// NewRepository creates an empty repository publishing on bus.
func NewRepository(bus *events.Bus, persister Persister) *Repository {
	return &Repository{
		byKey:     make(map[string]api.TopicConfiguration),
		byID:      make(map[string]string),
		bus:       bus,
		persister: persister,
	}
}

func key(topic, sourceType string) string {
	return strings.ToLower(topic) + "\x00" + sourceType
}

// Create registers a new topic configuration and emits TopicAddedEvent.
// Creating a duplicate (topic, sourceType) pair fails with a
// ValidationError.
func (r *Repository) Create(ctx context.Context, t api.TopicConfiguration) (api.TopicConfiguration, error) {
	if err := ctx.Err(); err != nil {
		return api.TopicConfiguration{}, err
	}
	if strings.TrimSpace(t.Topic) == "" {
		return api.TopicConfiguration{}, api.NewValidationError("topic configuration", "empty topic")
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.ModifiedAt = now

	k := key(t.Topic, t.SourceType)

	r.mu.Lock()
	if _, exists := r.byKey[k]; exists {
		r.mu.Unlock()
		return api.TopicConfiguration{}, api.NewValidationError("topic configuration",
			fmt.Sprintf("topic %s already registered for source %s", t.Topic, t.SourceType))
	}
	r.byKey[k] = t
	r.byID[t.ID] = k
	r.mu.Unlock()

	r.persist(t)
	if r.bus != nil {
		r.bus.Publish(events.TopicAddedEvent{Topic: t.Clone(), Timestamp: now})
	}
	logging.Debug("TopicRepository", "registered topic %s (source=%s, verified=%t)",
		logging.TruncateTopic(t.Topic), t.SourceType, t.IsVerified)
	return t.Clone(), nil
}

// Update replaces an existing configuration (matched by id, falling back to
// the (topic, sourceType) key) and emits TopicConfigurationUpdatedEvent.
func (r *Repository) Update(ctx context.Context, t api.TopicConfiguration) (api.TopicConfiguration, error) {
	if err := ctx.Err(); err != nil {
		return api.TopicConfiguration{}, err
	}

	r.mu.Lock()
	oldKey, ok := r.byID[t.ID]
	if !ok {
		oldKey = key(t.Topic, t.SourceType)
		if _, ok = r.byKey[oldKey]; !ok {
			r.mu.Unlock()
			return api.TopicConfiguration{}, api.NewTopicNotFoundError(t.Topic)
		}
		t.ID = r.byKey[oldKey].ID
	}
	prev := r.byKey[oldKey]
	t.CreatedAt = prev.CreatedAt
	t.ModifiedAt = time.Now().UTC()

	newKey := key(t.Topic, t.SourceType)
	if newKey != oldKey {
		if _, clash := r.byKey[newKey]; clash {
			r.mu.Unlock()
			return api.TopicConfiguration{}, api.NewValidationError("topic configuration",
				fmt.Sprintf("topic %s already registered for source %s", t.Topic, t.SourceType))
		}
		delete(r.byKey, oldKey)
	}
	r.byKey[newKey] = t
	r.byID[t.ID] = newKey
	r.mu.Unlock()

	r.persist(t)
	if r.bus != nil {
		r.bus.Publish(events.TopicConfigurationUpdatedEvent{Topic: t.Clone(), Timestamp: t.ModifiedAt})
	}
	return t.Clone(), nil
}

// Delete removes a configuration and emits TopicRemovedEvent.
func (r *Repository) Delete(ctx context.Context, topic, sourceType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := key(topic, sourceType)
	r.mu.Lock()
	t, ok := r.byKey[k]
	if !ok {
		r.mu.Unlock()
		return api.NewTopicNotFoundError(topic)
	}
	delete(r.byKey, k)
	delete(r.byID, t.ID)
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.DeleteTopic(t.ID); err != nil {
			logging.Warn("TopicRepository", "failed to delete persisted topic %s: %v", t.ID, err)
		}
	}
	if r.bus != nil {
		r.bus.Publish(events.TopicRemovedEvent{Topic: t.Topic, SourceType: sourceType, Timestamp: time.Now().UTC()})
	}
	return nil
}

// Verify promotes a topic configuration to verified.
func (r *Repository) Verify(ctx context.Context, topic, sourceType string) (api.TopicConfiguration, error) {
	r.mu.RLock()
	t, ok := r.byKey[key(topic, sourceType)]
	r.mu.RUnlock()
	if !ok {
		return api.TopicConfiguration{}, api.NewTopicNotFoundError(topic)
	}
	t.IsVerified = true
	return r.Update(ctx, t)
}

// GetByTopic matches the wire topic case-insensitively across all source
// types; when several sources carry the topic the lexicographically first
// source wins for determinism.
func (r *Repository) GetByTopic(topic string) (api.TopicConfiguration, bool) {
	prefix := strings.ToLower(topic) + "\x00"
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best api.TopicConfiguration
	found := false
	for k, t := range r.byKey {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !found || t.SourceType < best.SourceType {
			best = t
			found = true
		}
	}
	if !found {
		return api.TopicConfiguration{}, false
	}
	return best.Clone(), true
}

// GetByTopicAndSource matches one (topic, sourceType) pair.
func (r *Repository) GetByTopicAndSource(topic, sourceType string) (api.TopicConfiguration, bool) {
	r.mu.RLock()
	t, ok := r.byKey[key(topic, sourceType)]
	r.mu.RUnlock()
	if !ok {
		return api.TopicConfiguration{}, false
	}
	return t.Clone(), true
}

// GetByID returns a configuration by id.
func (r *Repository) GetByID(id string) (api.TopicConfiguration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byID[id]
	if !ok {
		return api.TopicConfiguration{}, false
	}
	return r.byKey[k].Clone(), true
}

// List returns all configurations ordered by topic.
func (r *Repository) List() []api.TopicConfiguration {
	return r.filter(func(api.TopicConfiguration) bool { return true })
}

// ByNamespace returns configurations whose NS path equals or descends from
// prefix.
func (r *Repository) ByNamespace(prefix string) []api.TopicConfiguration {
	return r.filter(func(t api.TopicConfiguration) bool {
		return api.IsPathPrefix(prefix, t.NSPath)
	})
}

// BySource returns configurations for one source type.
func (r *Repository) BySource(sourceType string) []api.TopicConfiguration {
	return r.filter(func(t api.TopicConfiguration) bool {
		return t.SourceType == sourceType
	})
}

// UnverifiedOnly returns configurations awaiting operator triage.
func (r *Repository) UnverifiedOnly() []api.TopicConfiguration {
	return r.filter(func(t api.TopicConfiguration) bool { return !t.IsVerified })
}

// Search returns configurations whose topic or UNS name contains pattern
// (case-insensitive), or match it as a topic filter when pattern carries
// wildcards.
func (r *Repository) Search(pattern string) []api.TopicConfiguration {
	lower := strings.ToLower(pattern)
	wild := strings.ContainsAny(pattern, "+#*")
	return r.filter(func(t api.TopicConfiguration) bool {
		if wild {
			return api.MatchTopicFilter(pattern, t.Topic)
		}
		return strings.Contains(strings.ToLower(t.Topic), lower) ||
			strings.Contains(strings.ToLower(t.UNSName), lower)
	})
}

// Count returns the number of registered configurations.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Restore loads a persisted configuration without emitting events.
// Bootstrap only.
func (r *Repository) Restore(t api.TopicConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(t.Topic, t.SourceType)
	r.byKey[k] = t
	r.byID[t.ID] = k
}

func (r *Repository) filter(keep func(api.TopicConfiguration) bool) []api.TopicConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []api.TopicConfiguration
	for _, t := range r.byKey {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].SourceType < out[j].SourceType
	})
	return out
}

func (r *Repository) persist(t api.TopicConfiguration) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SaveTopic(t); err != nil {
		logging.Warn("TopicRepository", "failed to persist topic %s: %v", t.ID, err)
	}
}
