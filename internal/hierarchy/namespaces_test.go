package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
)

func TestCreateAndFindNamespace(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.CreatePathFromString("Acme/Plant1")

	ns, err := r.CreateNamespace(context.Background(), api.NamespaceNode{
		Name:             "Production/Sensors",
		HierarchicalPath: p,
		AutoVerifyTopics: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ns.ID)
	assert.True(t, ns.IsActive)

	found, ok := r.FindNamespaceByPath("Acme/Plant1/Production/Sensors")
	assert.True(t, ok)
	assert.Equal(t, ns.ID, found.ID)

	// Lookup is case-insensitive.
	_, ok = r.FindNamespaceByPath("acme/plant1/production/sensors")
	assert.True(t, ok)
}

func TestCreateNamespaceRejectsInvalidAttachment(t *testing.T) {
	r := newTestRegistry(t)

	// Path missing required Enterprise.
	bad := api.HierarchicalPath{Segments: []api.PathSegment{
		{Level: "Enterprise", Value: ""},
		{Level: "Site", Value: "Plant1"},
	}}
	_, err := r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "X", HierarchicalPath: bad})
	assert.True(t, api.IsValidation(err))

	p, _ := r.CreatePathFromString("Acme")
	_, err = r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "", HierarchicalPath: p})
	assert.True(t, api.IsValidation(err))
}

func TestCreateNamespaceRejectsDuplicatePath(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.CreatePathFromString("Acme/Plant1")

	_, err := r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "OEE", HierarchicalPath: p})
	require.NoError(t, err)
	_, err = r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "OEE", HierarchicalPath: p})
	assert.True(t, api.IsValidation(err))
}

func TestDeleteNamespace(t *testing.T) {
	api.ResetHandlers()
	t.Cleanup(api.ResetHandlers)

	r := newTestRegistry(t)
	p, _ := r.CreatePathFromString("Acme/Plant1")
	ns, err := r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "OEE", HierarchicalPath: p})
	require.NoError(t, err)

	require.NoError(t, r.DeleteNamespace(context.Background(), ns.ID))
	_, ok := r.GetNamespace(ns.ID)
	assert.False(t, ok)

	err = r.DeleteNamespace(context.Background(), ns.ID)
	assert.True(t, api.IsNotFound(err))
}

func TestResolvePath(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.CreatePathFromString("Acme/Plant1")
	_, err := r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "OEE", HierarchicalPath: p})
	require.NoError(t, err)

	// A registered namespace resolves to its attachment path.
	resolved, err := r.ResolvePath("Acme/Plant1/OEE")
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1", resolved.FullPath())

	// A pure hierarchy path resolves level by level.
	resolved, err = r.ResolvePath("Acme/Plant1/Line3")
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Line3", resolved.FullPath())

	// Deeper than the configuration: hierarchy prefix only.
	resolved, err = r.ResolvePath("Acme/Plant1/Line3/Extra/Deep")
	require.NoError(t, err)
	assert.Equal(t, "Acme/Plant1/Line3", resolved.FullPath())

	// Empty NS path resolves to the empty path.
	resolved, err = r.ResolvePath("")
	require.NoError(t, err)
	assert.True(t, resolved.IsEmpty())
}

func TestGetNamespaceStructure(t *testing.T) {
	r := newTestRegistry(t)
	p1, _ := r.CreatePathFromString("Acme/Plant1")
	p2, _ := r.CreatePathFromString("Acme/Plant2")

	_, err := r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "Production/Sensors", HierarchicalPath: p1})
	require.NoError(t, err)
	_, err = r.CreateNamespace(context.Background(), api.NamespaceNode{Name: "Energy", HierarchicalPath: p2})
	require.NoError(t, err)

	forest, err := r.GetNamespaceStructure()
	require.NoError(t, err)
	require.Len(t, forest, 1)

	root := forest[0]
	assert.Equal(t, "Acme", root.Name)
	assert.Equal(t, api.NSNodeHierarchy, root.NodeType)
	require.Len(t, root.Children, 2)

	plant1 := root.Children[0]
	assert.Equal(t, "Plant1", plant1.Name)
	require.Len(t, plant1.Children, 1)
	production := plant1.Children[0]
	assert.Equal(t, api.NSNodeNamespace, production.NodeType)
	assert.Equal(t, "Acme/Plant1/Production", production.FullPath)
	require.Len(t, production.Children, 1)
	assert.Equal(t, "Sensors", production.Children[0].Name)

	plant2 := root.Children[1]
	require.Len(t, plant2.Children, 1)
	assert.Equal(t, "Energy", plant2.Children[0].Name)
	assert.Equal(t, api.NSNodeNamespace, plant2.Children[0].NodeType)
}
