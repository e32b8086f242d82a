package automap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
	"unshub/internal/events"
	"unshub/internal/hierarchy"
	"unshub/internal/topics"
)

type fixture struct {
	registry *hierarchy.Registry
	repo     *topics.Repository
	bus      *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := events.NewBus()
	registry := hierarchy.NewRegistry(nil)
	repo := topics.NewRepository(bus, nil)
	return &fixture{registry: registry, repo: repo, bus: bus}
}

func (f *fixture) mapper(cfg Config) *Mapper {
	return NewMapper(cfg, f.registry, f.repo, f.bus)
}

func (f *fixture) addNamespace(t *testing.T, pathStr, name string, autoVerify bool) {
	t.Helper()
	p, err := f.registry.CreatePathFromString(pathStr)
	require.NoError(t, err)
	_, err = f.registry.CreateNamespace(context.Background(), api.NamespaceNode{
		Name:             name,
		HierarchicalPath: p,
		AutoVerifyTopics: autoVerify,
	})
	require.NoError(t, err)
}

func TestDisabledMapperReturnsNil(t *testing.T) {
	f := newFixture(t)
	m := f.mapper(Config{Enabled: false})

	got, err := m.Map(context.Background(), "any/topic", "mqtt")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, f.repo.Count())
}

// The rule-mapping scenario: stripPrefixes=["socketio/update/"], rule
// "([^/]+)/([^/]+)/?.*" -> "{0}/{1}" at confidence 0.9, threshold 0.8.
func TestMapByRule(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "OEE", true)

	m := f.mapper(Config{
		Enabled:           true,
		MinimumConfidence: 0.8,
		StripPrefixes:     []string{"socketio/update/"},
		CaseSensitive:     true,
		CustomRules: []Rule{
			{Pattern: `([^/]+)/([^/]+)/?.*`, NSPathTemplate: "{0}/{1}", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "socketio/update/Enterprise1/OEE/value", "socketio")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Enterprise1/OEE", got.NSPath)
	assert.Equal(t, "value", got.UNSName)
	assert.True(t, got.IsVerified) // rule match + autoVerifyTopics namespace
	assert.Equal(t, "Enterprise1", got.Path.FullPath())

	// Persisted in the repository.
	stored, ok := f.repo.GetByTopicAndSource("socketio/update/Enterprise1/OEE/value", "socketio")
	assert.True(t, ok)
	assert.Equal(t, got.ID, stored.ID)
}

func TestRuleWithoutAutoVerifyStaysUnverified(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "OEE", false)

	m := f.mapper(Config{
		Enabled:           true,
		MinimumConfidence: 0.8,
		CaseSensitive:     true,
		CustomRules: []Rule{
			{Pattern: `([^/]+)/([^/]+)/?.*`, NSPathTemplate: "{0}/{1}", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "Enterprise1/OEE/value", "mqtt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsVerified)
}

func TestInactiveRulesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Enterprise1", "OEE", true)

	m := f.mapper(Config{
		Enabled:           true,
		MinimumConfidence: 0.8,
		CaseSensitive:     true,
		CustomRules: []Rule{
			{Pattern: `.*`, NSPathTemplate: "Wrong/Place", Confidence: 0.99, Active: false},
			{Pattern: `([^/]+)/([^/]+)/?.*`, NSPathTemplate: "{0}/{1}", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "Enterprise1/OEE/value", "mqtt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Enterprise1/OEE", got.NSPath)
}

func TestTreeWalkMapsByPrefixScore(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	m := f.mapper(Config{Enabled: true, MinimumConfidence: 0.7, MaxSearchDepth: 8})

	// Topic segments match the candidate exactly: score 1.0.
	got, err := m.Map(context.Background(), "acme/plant1/sensors/temp", "mqtt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme/Plant1/Sensors", got.NSPath)
	assert.Equal(t, "temp", got.UNSName)
	assert.False(t, got.IsVerified) // tree matches never auto-verify
}

func TestUnplaceableTopicEmitsAutoMappingFailed(t *testing.T) {
	f := newFixture(t)
	f.addNamespace(t, "Acme/Plant1", "Sensors", false)

	var failures []events.AutoMappingFailedEvent
	f.bus.Subscribe(events.KindAutoMappingFailed, "t", func(e events.Event) {
		failures = append(failures, e.(events.AutoMappingFailedEvent))
	})

	m := f.mapper(Config{Enabled: true, MinimumConfidence: 0.9, MaxSearchDepth: 8})

	// Only the Enterprise root matches, and topics are not allowed there:
	// the point is surfaced for triage with the candidate suggestions.
	got, err := m.Map(context.Background(), "acme/other/line", "mqtt")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.Len(t, failures, 1)
	assert.Equal(t, "acme/other/line", failures[0].Topic)
	assert.NotEmpty(t, failures[0].Suggestions)
	assert.Equal(t, 0, f.repo.Count())

	// A topic sharing no segments with the tree has no candidate at all.
	got, err = m.Map(context.Background(), "zeta/unknown", "mqtt")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, failures, 2)
}

func TestDisallowedPlacementIsRejectedNotPersisted(t *testing.T) {
	f := newFixture(t)

	var failures int
	f.bus.Subscribe(events.KindAutoMappingFailed, "t", func(e events.Event) { failures++ })

	// Rule maps everything onto the Enterprise level, which has
	// allowTopics=false in the default configuration.
	m := f.mapper(Config{
		Enabled:           true,
		MinimumConfidence: 0.5,
		CaseSensitive:     true,
		CustomRules: []Rule{
			{Pattern: `([^/]+).*`, NSPathTemplate: "{0}", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "Acme/anything", "mqtt")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, f.repo.Count())
}

func TestCreateMissingNodesMaterialisesNamespace(t *testing.T) {
	f := newFixture(t)

	m := f.mapper(Config{
		Enabled:            true,
		MinimumConfidence:  0.5,
		CreateMissingNodes: true,
		CaseSensitive:      true,
		CustomRules: []Rule{
			// Deeper than the five hierarchy levels: the tail becomes a
			// namespace node.
			{Pattern: `(.*)`, NSPathTemplate: "E1/S1/A1/L1/C1/Extra", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "whatever", "mqtt")
	require.NoError(t, err)
	require.NotNil(t, got)

	ns, ok := f.registry.FindNamespaceByPath("E1/S1/A1/L1/C1/Extra")
	assert.True(t, ok)
	assert.Equal(t, "Extra", ns.Name)
	assert.False(t, got.IsVerified) // freshly materialised nodes never auto-verify
}

func TestBadRulePatternIsDeactivated(t *testing.T) {
	f := newFixture(t)
	m := f.mapper(Config{
		Enabled:           true,
		MinimumConfidence: 0.5,
		CustomRules: []Rule{
			{Pattern: `([`, NSPathTemplate: "x", Confidence: 0.9, Active: true},
		},
	})

	got, err := m.Map(context.Background(), "topic", "mqtt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDiscoveryFallback(t *testing.T) {
	f := newFixture(t)
	d := NewDiscovery(f.repo)
	ctx := context.Background()

	created, err := d.Register(ctx, "mystery/device/7/state", "mqtt")
	require.NoError(t, err)
	assert.False(t, created.IsVerified)
	assert.Equal(t, "", created.NSPath)
	assert.True(t, created.Path.IsEmpty())
	assert.Equal(t, "state", created.UNSName)

	// Idempotent for the same pair.
	again, err := d.Register(ctx, "mystery/device/7/state", "mqtt")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, 1, f.repo.Count())

	// Surfaces in the triage view.
	assert.Len(t, f.repo.UnverifiedOnly(), 1)
}
