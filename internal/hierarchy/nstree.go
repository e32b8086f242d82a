package hierarchy

import (
	"sort"
	"strings"

	"unshub/internal/api"
)

// GetNamespaceStructure builds the composed NS tree forest: for every
// hierarchical path instance that carries a namespace, a chain of hierarchy
// instance nodes with the namespace nodes (including empty ones) grafted at
// their attachment points. The forest is rebuilt from the registry on every
// call and is safe to mutate by callers.
func (r *Registry) GetNamespaceStructure() ([]*api.NSTreeNode, error) {
	if _, err := r.GetActiveConfiguration(); err != nil {
		return nil, err
	}

	roots := make(map[string]*api.NSTreeNode)
	index := make(map[string]*api.NSTreeNode)

	ensure := func(fullPath, name string, nodeType api.NSNodeType) *api.NSTreeNode {
		if n, ok := index[fullPath]; ok {
			return n
		}
		n := &api.NSTreeNode{Name: name, FullPath: fullPath, NodeType: nodeType}
		index[fullPath] = n
		if parent := parentPath(fullPath); parent == "" {
			roots[fullPath] = n
		} else if p, ok := index[parent]; ok {
			p.Children = append(p.Children, n)
		} else {
			// Parent not materialised yet; the caller loop below always
			// materialises ancestors first, so this is a root in disguise.
			roots[fullPath] = n
		}
		return n
	}

	for _, ns := range r.ListNamespaces() {
		// Hierarchy instance chain for the attachment path.
		var prefix []string
		for _, seg := range ns.HierarchicalPath.Segments {
			if seg.Value == "" {
				continue
			}
			prefix = append(prefix, seg.Value)
			ensure(strings.Join(prefix, "/"), seg.Value, api.NSNodeHierarchy)
		}
		// Namespace segments, possibly nested ("Production/Sensors").
		for _, part := range strings.Split(strings.Trim(ns.Name, "/"), "/") {
			if part == "" {
				continue
			}
			prefix = append(prefix, part)
			ensure(strings.Join(prefix, "/"), part, api.NSNodeNamespace)
		}
	}

	out := make([]*api.NSTreeNode, 0, len(roots))
	for _, n := range roots {
		sortTree(n)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out, nil
}

func sortTree(n *api.NSTreeNode) {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		sortTree(c)
	}
}

func parentPath(fullPath string) string {
	idx := strings.LastIndex(fullPath, "/")
	if idx < 0 {
		return ""
	}
	return fullPath[:idx]
}
