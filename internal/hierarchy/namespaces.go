package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// ListNamespaces returns all namespace nodes, ordered by NS path.
func (r *Registry) ListNamespaces() []api.NamespaceNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.NamespaceNode, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		return nsFullPath(out[i]) < nsFullPath(out[j])
	})
	return out
}

// GetNamespace returns a namespace node by id.
func (r *Registry) GetNamespace(id string) (api.NamespaceNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[id]
	return ns, ok
}

// FindNamespaceByPath locates a namespace by its full NS path
// (hierarchicalPath full path + "/" + namespace name), case-insensitively.
func (r *Registry) FindNamespaceByPath(nsPath string) (api.NamespaceNode, bool) {
	want := strings.ToLower(strings.Trim(nsPath, "/"))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ns := range r.namespaces {
		if strings.ToLower(nsFullPath(ns)) == want {
			return ns, true
		}
	}
	return api.NamespaceNode{}, false
}

// CreateNamespace validates the attachment path against the active
// configuration and registers the node. Namespace names may contain "/" to
// declare nested sub-namespaces in one step ("Production/Sensors").
func (r *Registry) CreateNamespace(ctx context.Context, n api.NamespaceNode) (api.NamespaceNode, error) {
	if err := ctx.Err(); err != nil {
		return api.NamespaceNode{}, err
	}
	if strings.Trim(n.Name, "/") == "" {
		return api.NamespaceNode{}, api.NewValidationError("namespace", "empty name")
	}
	if err := r.ValidatePath(n.HierarchicalPath); err != nil {
		return api.NamespaceNode{}, err
	}
	if _, exists := r.FindNamespaceByPath(nsFullPath(n)); exists {
		return api.NamespaceNode{}, api.NewValidationError("namespace",
			fmt.Sprintf("namespace already exists at %s", nsFullPath(n)))
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.ModifiedAt = now
	n.IsActive = true

	r.mu.Lock()
	r.namespaces[n.ID] = n
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.SaveNamespace(n); err != nil {
			logging.Warn("Hierarchy", "failed to persist namespace %s: %v", n.ID, err)
		}
	}
	logging.Debug("Hierarchy", "created namespace %s at %s", n.Name, n.HierarchicalPath.FullPath())
	return n, nil
}

// DeleteNamespace removes a namespace node. Deletion is refused while any
// topic configuration references the namespace's NS path.
func (r *Registry) DeleteNamespace(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	ns, ok := r.namespaces[id]
	r.mu.RUnlock()
	if !ok {
		return api.NewNamespaceNotFoundError(id)
	}

	if repo := api.GetTopicRepository(); repo != nil {
		if refs := repo.ByNamespace(nsFullPath(ns)); len(refs) > 0 {
			return api.NewValidationError("namespace "+ns.Name,
				fmt.Sprintf("%d topic configurations still reference %s", len(refs), nsFullPath(ns)))
		}
	}

	r.mu.Lock()
	delete(r.namespaces, id)
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.DeleteNamespace(id); err != nil {
			logging.Warn("Hierarchy", "failed to delete persisted namespace %s: %v", id, err)
		}
	}
	return nil
}

// RestoreNamespace loads a persisted namespace without re-validating or
// re-persisting. Bootstrap only.
func (r *Registry) RestoreNamespace(n api.NamespaceNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[n.ID] = n
}

// RestoreConfiguration loads a persisted hierarchy configuration without
// re-persisting. Bootstrap only.
func (r *Registry) RestoreConfiguration(cfg api.HierarchyConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.ID] = cfg
	if cfg.IsActive {
		r.activeID = cfg.ID
	}
}

// nsFullPath renders the namespace's full NS path: the attachment path's
// full path followed by the (possibly nested) namespace name.
func nsFullPath(n api.NamespaceNode) string {
	base := n.HierarchicalPath.FullPath()
	name := strings.Trim(n.Name, "/")
	if base == "" {
		return name
	}
	return base + "/" + name
}
