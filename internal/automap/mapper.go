package automap

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/events"
	"unshub/pkg/logging"
)

// Rule is one ordered custom mapping rule: a regex over the normalised
// topic and an NS-path template with {n} capture-group placeholders.
type Rule struct {
	Pattern        string  `yaml:"pattern" json:"pattern"`
	NSPathTemplate string  `yaml:"nsPathTemplate" json:"nsPathTemplate"`
	Confidence     float64 `yaml:"confidence" json:"confidence"`
	Active         bool    `yaml:"active" json:"active"`
	Description    string  `yaml:"description,omitempty" json:"description,omitempty"`

	compiled *regexp.Regexp
}

// Config drives the auto-mapper.
type Config struct {
	Enabled            bool     `yaml:"enabled" json:"enabled"`
	MinimumConfidence  float64  `yaml:"minimumConfidence" json:"minimumConfidence"`
	MaxSearchDepth     int      `yaml:"maxSearchDepth" json:"maxSearchDepth"`
	StripPrefixes      []string `yaml:"stripPrefixes" json:"stripPrefixes"`
	CreateMissingNodes bool     `yaml:"createMissingNodes" json:"createMissingNodes"`
	CaseSensitive      bool     `yaml:"caseSensitive" json:"caseSensitive"`
	CustomRules        []Rule   `yaml:"customRules" json:"customRules"`
}

// DefaultConfig returns a conservative mapper configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MinimumConfidence: 0.7,
		MaxSearchDepth:    8,
	}
}

// Mapper binds raw incoming topics to UNS placements: ordered custom rules
// first, then a walk of the composed namespace tree.
type Mapper struct {
	mu     sync.RWMutex
	config Config

	hierarchy api.HierarchyHandler
	topics    api.TopicRepositoryHandler
	bus       *events.Bus
}

// NewMapper creates a mapper over the given registries. Rule regexes are
// compiled eagerly; invalid patterns deactivate their rule with a warning.
func NewMapper(cfg Config, hierarchy api.HierarchyHandler, topics api.TopicRepositoryHandler, bus *events.Bus) *Mapper {
	m := &Mapper{hierarchy: hierarchy, topics: topics, bus: bus}
	m.SetConfig(cfg)
	return m
}

// SetConfig swaps the mapper configuration, recompiling rules.
func (m *Mapper) SetConfig(cfg Config) {
	for i := range cfg.CustomRules {
		r := &cfg.CustomRules[i]
		compiled, err := regexp.Compile(r.Pattern)
		if err != nil {
			logging.Warn("AutoMapper", "rule %d (%s): bad pattern %q: %v; deactivated",
				i, r.Description, r.Pattern, err)
			r.Active = false
			continue
		}
		r.compiled = compiled
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Map resolves (topic, sourceType) into a persisted TopicConfiguration, or
// nil when the mapper is disabled or no candidate reaches the confidence
// threshold. Below-threshold and disallowed mappings surface as
// AutoMappingFailed events; only genuinely exceptional failures return an
// error alongside.
func (m *Mapper) Map(ctx context.Context, topic, sourceType string) (*api.TopicConfiguration, error) {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if !cfg.Enabled {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalised := m.normalise(cfg, topic)

	// Rule phase: first active matching rule wins.
	candidate, ruleMatched := m.applyRules(cfg, normalised)

	// Tree phase when no rule matched.
	var suggestions []string
	if !ruleMatched {
		var best []scored
		candidate, best = m.walkTree(cfg, normalised)
		for _, s := range best {
			suggestions = append(suggestions, s.path)
		}
	}

	if candidate.path == "" || candidate.score < cfg.MinimumConfidence {
		m.reportFailure(topic, sourceType, candidate.score,
			fmt.Sprintf("best candidate score %.2f below threshold %.2f", candidate.score, cfg.MinimumConfidence),
			suggestions)
		return nil, nil
	}

	// Resolve the placement and enforce topic admissibility. The
	// allowTopics check applies when the topic lands directly on a
	// hierarchy node; a placement that reaches into a namespace below the
	// resolved path is governed by the namespace instead.
	path, err := m.hierarchy.ResolvePath(candidate.path)
	if err != nil {
		m.reportFailure(topic, sourceType, candidate.score, err.Error(), suggestions)
		return nil, nil
	}
	if equalFoldPath(path.FullPath(), candidate.path) {
		if err := m.hierarchy.ValidateTopicMapping(path); err != nil {
			m.reportFailure(topic, sourceType, candidate.score, err.Error(), suggestions)
			return nil, nil
		}
	}

	// Materialise the namespace node when asked to.
	nsNode, nsExists := m.hierarchy.FindNamespaceByPath(candidate.path)
	var materialised *api.NamespaceNode
	if !nsExists && cfg.CreateMissingNodes {
		if created, ok := m.materialiseNamespace(ctx, candidate.path, path); ok {
			nsNode, nsExists = created, true
			materialised = &created
		}
	}

	unsName := m.unsName(normalised, candidate.path)
	topicCfg := api.TopicConfiguration{
		Topic:      topic,
		UNSName:    unsName,
		Path:       path,
		NSPath:     candidate.path,
		SourceType: sourceType,
		IsVerified: ruleMatched && nsExists && nsNode.AutoVerifyTopics,
		Metadata: map[string]interface{}{
			"mappedBy":   mappedBy(ruleMatched),
			"confidence": candidate.score,
		},
	}

	created, err := m.topics.Create(ctx, topicCfg)
	if err != nil {
		return nil, err
	}
	if materialised != nil && m.bus != nil {
		m.bus.Publish(events.TopicAddedEvent{Topic: created, Namespace: materialised, Timestamp: time.Now().UTC()})
	}
	logging.Info("AutoMapper", "mapped %s -> %s (score %.2f, verified=%t)",
		logging.TruncateTopic(topic), candidate.path, candidate.score, created.IsVerified)
	return &created, nil
}

type scored struct {
	path  string
	score float64
	lcp   int
}

func equalFoldPath(a, b string) bool {
	return strings.EqualFold(strings.Trim(a, "/"), strings.Trim(b, "/"))
}

// normalise strips the longest matching configured prefix and lowercases
// unless case-sensitive.
func (m *Mapper) normalise(cfg Config, topic string) string {
	out := topic
	longest := ""
	for _, prefix := range cfg.StripPrefixes {
		if strings.HasPrefix(out, prefix) && len(prefix) > len(longest) {
			longest = prefix
		}
	}
	out = strings.TrimPrefix(out, longest)
	out = strings.Trim(out, "/")
	if !cfg.CaseSensitive {
		out = strings.ToLower(out)
	}
	return out
}

// applyRules runs the ordered rule list; the first active match wins.
func (m *Mapper) applyRules(cfg Config, normalised string) (scored, bool) {
	for _, rule := range cfg.CustomRules {
		if !rule.Active || rule.compiled == nil {
			continue
		}
		groups := rule.compiled.FindStringSubmatch(normalised)
		if groups == nil {
			continue
		}
		nsPath := rule.NSPathTemplate
		for i, group := range groups[1:] {
			nsPath = strings.ReplaceAll(nsPath, fmt.Sprintf("{%d}", i), group)
		}
		return scored{path: strings.Trim(nsPath, "/"), score: rule.Confidence}, true
	}
	return scored{}, false
}

// walkTree scores every namespace-tree node against the normalised topic:
// longest common segment prefix divided by candidate depth. Returns the
// winner plus the top candidates for failure suggestions.
func (m *Mapper) walkTree(cfg Config, normalised string) (scored, []scored) {
	forest, err := m.hierarchy.GetNamespaceStructure()
	if err != nil {
		logging.Warn("AutoMapper", "namespace structure unavailable: %v", err)
		return scored{}, nil
	}
	topicSegs := strings.Split(normalised, "/")

	var candidates []scored
	for _, root := range forest {
		root.Walk(func(n *api.NSTreeNode) bool {
			candSegs := strings.Split(n.FullPath, "/")
			if cfg.MaxSearchDepth > 0 && len(candSegs) > cfg.MaxSearchDepth {
				return false
			}
			lcp := 0
			for lcp < len(candSegs) && lcp < len(topicSegs) && segEqual(cfg, candSegs[lcp], topicSegs[lcp]) {
				lcp++
			}
			if lcp > 0 {
				candidates = append(candidates, scored{
					path:  n.FullPath,
					score: float64(lcp) / float64(len(candSegs)),
					lcp:   lcp,
				})
			}
			return true
		})
	}
	if len(candidates) == 0 {
		return scored{}, nil
	}

	// Ties break on more matched segments (the deeper, more specific
	// placement), then lexicographically smaller path.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].lcp != candidates[j].lcp {
			return candidates[i].lcp > candidates[j].lcp
		}
		return candidates[i].path < candidates[j].path
	})

	topK := candidates
	if len(topK) > 3 {
		topK = topK[:3]
	}
	return candidates[0], topK
}

func segEqual(cfg Config, a, b string) bool {
	if cfg.CaseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// materialiseNamespace creates the missing namespace node for an accepted
// candidate whose segments reach beyond the hierarchy levels.
func (m *Mapper) materialiseNamespace(ctx context.Context, nsPath string, attachment api.HierarchicalPath) (api.NamespaceNode, bool) {
	prefix := attachment.FullPath()
	if !api.IsPathPrefix(prefix, nsPath) || prefix == nsPath {
		// The candidate resolves entirely inside the hierarchy: nothing to
		// materialise.
		return api.NamespaceNode{}, false
	}
	name := strings.TrimPrefix(strings.TrimPrefix(nsPath, prefix), "/")
	created, err := m.hierarchy.CreateNamespace(ctx, api.NamespaceNode{
		Name:             name,
		HierarchicalPath: attachment,
		AutoVerifyTopics: false,
	})
	if err != nil {
		logging.Warn("AutoMapper", "failed to materialise namespace %s: %v", nsPath, err)
		return api.NamespaceNode{}, false
	}
	logging.Info("AutoMapper", "materialised namespace %s", nsPath)
	return created, true
}

// unsName derives the leaf name: the part of the normalised topic below the
// NS path, or its last segment.
func (m *Mapper) unsName(normalised, nsPath string) string {
	lowerNS := strings.ToLower(nsPath)
	lowerTopic := strings.ToLower(normalised)
	if strings.HasPrefix(lowerTopic, lowerNS+"/") {
		return normalised[len(nsPath)+1:]
	}
	segs := strings.Split(normalised, "/")
	return segs[len(segs)-1]
}

func (m *Mapper) reportFailure(topic, sourceType string, score float64, reason string, suggestions []string) {
	logging.Debug("AutoMapper", "mapping failed for %s: %s", logging.TruncateTopic(topic), reason)
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.AutoMappingFailedEvent{
		Topic:       topic,
		SourceType:  sourceType,
		Score:       score,
		Reason:      reason,
		Suggestions: suggestions,
		Timestamp:   time.Now().UTC(),
	})
}

func mappedBy(rule bool) string {
	if rule {
		return "rule"
	}
	return "tree"
}
