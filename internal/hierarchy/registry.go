package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// Persister stores hierarchy configurations and namespace nodes durably.
// The registry calls it inside its own lock-free sections; implementations
// must be safe for concurrent use. A nil persister keeps the registry
// memory-only, which tests rely on.
type Persister interface {
	SaveHierarchyConfiguration(cfg api.HierarchyConfiguration) error
	DeleteHierarchyConfiguration(id string) error
	SaveNamespace(n api.NamespaceNode) error
	DeleteNamespace(id string) error
}

// TopicValidator is the slice of the topic repository the activation swap
// needs: every registered topic must stay valid under a proposed
// configuration before the swap commits.
type TopicValidator = interface {
	List() []api.TopicConfiguration
}

// Registry owns hierarchy configurations and namespace nodes and is the
// single authority for path validation and the composed namespace tree.
type Registry struct {
	mu         sync.RWMutex
	configs    map[string]api.HierarchyConfiguration
	activeID   string
	namespaces map[string]api.NamespaceNode

	persister Persister

	// swapGuard serialises activation swaps against each other; path reads
	// keep using mu so ingestion is only paused for the commit itself.
	swapGuard sync.Mutex

	// pauseHook, when set, brackets the activation commit. The app wires it
	// to the queue processor so inbound points are paused during the swap.
	// Calling it pauses intake; calling the returned func resumes.
	pauseHook func() (resume func())
}

// NewRegistry creates a registry seeded with the system-defined default
// configuration, already active.
func NewRegistry(persister Persister) *Registry {
	r := &Registry{
		configs:    make(map[string]api.HierarchyConfiguration),
		namespaces: make(map[string]api.NamespaceNode),
		persister:  persister,
	}
	def := DefaultConfiguration()
	r.configs[def.ID] = def
	r.activeID = def.ID
	return r
}

// DefaultConfiguration returns the system-defined ISA-95-style template:
// Enterprise / Site / Area / Line / Cell, with topics allowed from Site
// downward.
func DefaultConfiguration() api.HierarchyConfiguration {
	return api.HierarchyConfiguration{
		ID:              "default",
		Name:            "ISA-95 Default",
		IsActive:        true,
		IsSystemDefined: true,
		Nodes: []api.HierarchyNode{
			{ID: "enterprise", Name: "Enterprise", Order: 0, Required: true, AllowTopics: false,
				Description: "Top-level organisation"},
			{ID: "site", Name: "Site", Order: 1, AllowTopics: true},
			{ID: "area", Name: "Area", Order: 2, AllowTopics: true},
			{ID: "line", Name: "Line", Order: 3, AllowTopics: true},
			{ID: "cell", Name: "Cell", Order: 4, AllowTopics: true},
		},
	}
}

// SetPauseHook installs the ingestion pause bracket used during activation
// swaps. The hook pauses intake and returns the func that resumes it.
func (r *Registry) SetPauseHook(hook func() (resume func())) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseHook = hook
}

// GetActiveConfiguration returns the active hierarchy template.
func (r *Registry) GetActiveConfiguration() (api.HierarchyConfiguration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[r.activeID]
	if !ok {
		return api.HierarchyConfiguration{}, api.NewHierarchyConfigNotFoundError(r.activeID)
	}
	return cfg, nil
}

// ListConfigurations returns all known configurations, active flag set on
// the active one.
func (r *Registry) ListConfigurations() []api.HierarchyConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.HierarchyConfiguration, 0, len(r.configs))
	for id, cfg := range r.configs {
		cfg.IsActive = id == r.activeID
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddConfiguration registers a new (inactive) configuration after structural
// validation.
func (r *Registry) AddConfiguration(cfg api.HierarchyConfiguration) (api.HierarchyConfiguration, error) {
	if err := validateConfiguration(cfg); err != nil {
		return api.HierarchyConfiguration{}, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.IsActive = false

	r.mu.Lock()
	if _, exists := r.configs[cfg.ID]; exists {
		r.mu.Unlock()
		return api.HierarchyConfiguration{}, api.NewValidationError("hierarchy configuration",
			fmt.Sprintf("configuration %s already exists", cfg.ID))
	}
	r.configs[cfg.ID] = cfg
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.SaveHierarchyConfiguration(cfg); err != nil {
			logging.Warn("Hierarchy", "failed to persist configuration %s: %v", cfg.ID, err)
		}
	}
	return cfg, nil
}

// Activate swaps the active configuration. The swap runs in three phases:
// build the proposed config, re-validate every existing topic configuration
// against it, then commit atomically. Any offending topic rejects the whole
// swap with a ValidationError listing the offenders.
func (r *Registry) Activate(ctx context.Context, configID string, topics TopicValidator) error {
	r.swapGuard.Lock()
	defer r.swapGuard.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	proposed, ok := r.configs[configID]
	pauseHook := r.pauseHook
	r.mu.RUnlock()
	if !ok {
		return api.NewHierarchyConfigNotFoundError(configID)
	}
	if err := validateConfiguration(proposed); err != nil {
		return err
	}

	// Phase 2: every registered topic must remain placeable.
	var offenders []string
	if topics != nil {
		for _, t := range topics.List() {
			if err := validatePathAgainst(proposed, t.Path); err != nil {
				offenders = append(offenders, fmt.Sprintf("%s (%v)", t.Topic, err))
				continue
			}
			if err := validateTopicMappingAgainst(proposed, t.Path); err != nil {
				offenders = append(offenders, fmt.Sprintf("%s (%v)", t.Topic, err))
			}
		}
	}
	if len(offenders) > 0 {
		return api.NewValidationError("hierarchy activation", offenders...)
	}

	commit := func() {
		r.mu.Lock()
		r.activeID = configID
		r.mu.Unlock()
	}

	// Phase 3: commit, pausing ingestion for the duration when wired.
	if pauseHook != nil {
		resume := pauseHook()
		commit()
		resume()
	} else {
		commit()
	}

	logging.Info("Hierarchy", "activated configuration %s", configID)
	return nil
}

// validateConfiguration checks structural invariants: at least one level,
// non-empty unique names, strictly unique orders. Two nodes sharing an
// order is a configuration error.
func validateConfiguration(cfg api.HierarchyConfiguration) error {
	if len(cfg.Nodes) == 0 {
		return api.NewValidationError("hierarchy configuration", "no levels defined")
	}
	seenOrder := make(map[int]string, len(cfg.Nodes))
	seenName := make(map[string]bool, len(cfg.Nodes))
	var msgs []string
	for _, n := range cfg.Nodes {
		if n.Name == "" {
			msgs = append(msgs, "level with empty name")
		}
		if prev, dup := seenOrder[n.Order]; dup {
			msgs = append(msgs, fmt.Sprintf("levels %s and %s share order %d", prev, n.Name, n.Order))
		}
		seenOrder[n.Order] = n.Name
		key := strings.ToLower(n.Name)
		if seenName[key] {
			msgs = append(msgs, fmt.Sprintf("duplicate level name %s", n.Name))
		}
		seenName[key] = true
	}
	if len(msgs) > 0 {
		return api.NewValidationError("hierarchy configuration "+cfg.Name, msgs...)
	}
	return nil
}

// orderedNodes returns the configuration's levels by ascending order.
func orderedNodes(cfg api.HierarchyConfiguration) []api.HierarchyNode {
	nodes := make([]api.HierarchyNode, len(cfg.Nodes))
	copy(nodes, cfg.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	return nodes
}

// nodeByName finds a level by case-insensitive name.
func nodeByName(cfg api.HierarchyConfiguration, name string) (api.HierarchyNode, bool) {
	for _, n := range cfg.Nodes {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return api.HierarchyNode{}, false
}
