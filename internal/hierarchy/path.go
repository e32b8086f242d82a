package hierarchy

import (
	"fmt"
	"strings"

	"unshub/internal/api"
)

// CreatePathFromString splits s by "/" and assigns the pieces to the ordered
// levels of the active configuration. More segments than levels fail with a
// ValidationError ("InvalidPath"). Fewer segments leave the deeper levels
// unassigned.
func (r *Registry) CreatePathFromString(s string) (api.HierarchicalPath, error) {
	cfg, err := r.GetActiveConfiguration()
	if err != nil {
		return api.HierarchicalPath{}, err
	}
	return createPathAgainst(cfg, s)
}

func createPathAgainst(cfg api.HierarchyConfiguration, s string) (api.HierarchicalPath, error) {
	nodes := orderedNodes(cfg)

	var segments []string
	if trimmed := strings.Trim(s, "/"); trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}
	if len(segments) > len(nodes) {
		return api.HierarchicalPath{}, api.NewInvalidPathError(s,
			fmt.Sprintf("%d segments but the active configuration has %d levels", len(segments), len(nodes)))
	}

	path := api.HierarchicalPath{Segments: make([]api.PathSegment, len(nodes))}
	for i, n := range nodes {
		value := ""
		if i < len(segments) {
			value = segments[i]
		}
		path.Segments[i] = api.PathSegment{Level: n.Name, Value: value}
	}
	return path, nil
}

// ValidatePath checks the path against the active configuration: required
// levels must be assigned, every assigned level must exist, and values must
// be non-empty where present.
func (r *Registry) ValidatePath(p api.HierarchicalPath) error {
	cfg, err := r.GetActiveConfiguration()
	if err != nil {
		return err
	}
	return validatePathAgainst(cfg, p)
}

func validatePathAgainst(cfg api.HierarchyConfiguration, p api.HierarchicalPath) error {
	var msgs []string
	for _, seg := range p.Segments {
		if _, ok := nodeByName(cfg, seg.Level); !ok {
			msgs = append(msgs, fmt.Sprintf("unknown level %s", seg.Level))
		}
	}
	for _, n := range cfg.Nodes {
		if n.Required && p.Value(n.Name) == "" {
			msgs = append(msgs, fmt.Sprintf("required level %s is unassigned", n.Name))
		}
	}
	if len(msgs) > 0 {
		return api.NewInvalidPathError(p.FullPath(), strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateTopicMapping fails when the deepest populated level of the path
// does not allow topics.
func (r *Registry) ValidateTopicMapping(p api.HierarchicalPath) error {
	cfg, err := r.GetActiveConfiguration()
	if err != nil {
		return err
	}
	return validateTopicMappingAgainst(cfg, p)
}

func validateTopicMappingAgainst(cfg api.HierarchyConfiguration, p api.HierarchicalPath) error {
	deepest := p.DeepestLevel()
	if deepest == "" {
		return nil
	}
	node, ok := nodeByName(cfg, deepest)
	if !ok {
		return api.NewInvalidPathError(p.FullPath(), fmt.Sprintf("unknown level %s", deepest))
	}
	if !node.AllowTopics {
		return &api.TopicNotAllowedError{Topic: p.FullPath(), Level: node.Name}
	}
	return nil
}

// ResolvePath resolves an NS path (hierarchy level values optionally
// followed by namespace segments) into the hierarchical path of its
// hierarchy prefix.
//
// A registered namespace whose full NS path equals nsPath wins over a
// pure-hierarchy reading; otherwise the segments are treated as hierarchy
// level values in order, and segments beyond the active configuration's
// level count are dropped.
func (r *Registry) ResolvePath(nsPath string) (api.HierarchicalPath, error) {
	cfg, err := r.GetActiveConfiguration()
	if err != nil {
		return api.HierarchicalPath{}, err
	}

	trimmed := strings.Trim(nsPath, "/")
	if trimmed == "" {
		return createPathAgainst(cfg, "")
	}

	// Prefer a registered namespace: its hierarchicalPath is authoritative.
	if ns, ok := r.FindNamespaceByPath(trimmed); ok {
		return ns.HierarchicalPath, nil
	}

	segments := strings.Split(trimmed, "/")
	levels := orderedNodes(cfg)

	// Trailing segments beyond the level count can only be namespace names;
	// only the hierarchy prefix is resolved and the remainder is not checked
	// against registered namespaces (the auto-mapper materialises namespaces
	// after resolving).
	n := len(segments)
	if n > len(levels) {
		n = len(levels)
	}
	return createPathAgainst(cfg, strings.Join(segments[:n], "/"))
}
