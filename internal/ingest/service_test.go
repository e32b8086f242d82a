package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/connections"
	"unshub/internal/events"
	"unshub/internal/hierarchy"
	"unshub/internal/queue"
	"unshub/internal/store"
	"unshub/internal/topics"
)

// fakeTransport is the minimal in-memory transport for ingestion tests.
type fakeTransport struct{}

func (fakeTransport) Dial(context.Context) error                                { return nil }
func (fakeTransport) Close(context.Context) error                               { return nil }
func (fakeTransport) Subscribe(context.Context, api.InputConfiguration) error   { return nil }
func (fakeTransport) Unsubscribe(context.Context, api.InputConfiguration) error { return nil }
func (fakeTransport) Publish(context.Context, string, []byte, int) error        { return nil }

type fakeConn struct {
	*connections.Harness
}

type fakeDescriptor struct {
	conns map[string]*fakeConn
}

func (d *fakeDescriptor) TypeID() string                        { return "fake" }
func (d *fakeDescriptor) DisplayName() string                   { return "Fake" }
func (d *fakeDescriptor) Description() string                   { return "" }
func (d *fakeDescriptor) ConnectionSchema() api.ConfigSchema    { return api.ConfigSchema{} }
func (d *fakeDescriptor) InputSchema() api.ConfigSchema         { return api.ConfigSchema{} }
func (d *fakeDescriptor) OutputSchema() api.ConfigSchema        { return api.ConfigSchema{} }
func (d *fakeDescriptor) DefaultConfig() map[string]interface{} { return nil }
func (d *fakeDescriptor) NewConnection(id string) connections.Connection {
	c := &fakeConn{Harness: connections.NewHarness(id, "fake", fakeTransport{}, connections.Schemas{})}
	d.conns[id] = c
	return c
}

type env struct {
	bus       *events.Bus
	registry  *hierarchy.Registry
	repo      *topics.Repository
	manager   *connections.Manager
	desc      *fakeDescriptor
	realtime  *store.RealtimeStore
	processor *queue.Processor[api.DataPoint]
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		bus:      events.NewBus(),
		registry: hierarchy.NewRegistry(nil),
		desc:     &fakeDescriptor{conns: make(map[string]*fakeConn)},
		realtime: store.NewRealtimeStore(),
	}
	e.repo = topics.NewRepository(e.bus, nil)

	typeReg := connections.NewTypeRegistry()
	require.NoError(t, typeReg.Register(e.desc))
	e.manager = connections.NewManager(typeReg)
	require.NoError(t, e.manager.Apply(context.Background(), api.ConnectionConfiguration{
		ID: "conn-1", ConnectionType: "fake", IsEnabled: true,
	}))

	e.processor = queue.NewProcessor("points", queue.Config{Lanes: 2, MaxConcurrentPerLane: 2, LaneCapacity: 64},
		NewPointProcessor(e.realtime, store.NewNoopHistoricalStore(), e.bus))
	e.processor.Start(context.Background())
	t.Cleanup(e.processor.Stop)
	return e
}

func (e *env) service(t *testing.T, mapperCfg automap.Config) *Service {
	t.Helper()
	mapper := automap.NewMapper(mapperCfg, e.registry, e.repo, e.bus)
	svc := NewService(Config{
		Name:         "svc",
		ConnectionID: "conn-1",
		Inputs:       []api.InputConfiguration{{ID: "all", IsEnabled: true, TopicFilter: "#"}},
	}, e.manager, mapper, automap.NewDiscovery(e.repo), e.repo, e.processor)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc
}

func TestIngestKnownTopicFlowsToStoreAndBus(t *testing.T) {
	e := newEnv(t)

	p, err := e.registry.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	_, err = e.repo.Create(context.Background(), api.TopicConfiguration{
		Topic: "plant/temp", UNSName: "temp", Path: p, NSPath: "Acme/Plant1",
		SourceType: "fake", IsVerified: true,
	})
	require.NoError(t, err)

	var updates []events.TopicDataUpdatedEvent
	done := make(chan struct{}, 8)
	e.bus.Subscribe(events.KindTopicDataUpdated, "t", func(ev events.Event) {
		updates = append(updates, ev.(events.TopicDataUpdatedEvent))
		done <- struct{}{}
	})

	svc := e.service(t, automap.Config{Enabled: false})

	// Deliver a wire message straight into the shared connection.
	e.desc.conns["conn-1"].HandleMessage("plant/temp", "", []byte(`23.5`))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no TopicDataUpdated event")
	}

	require.Len(t, updates, 1)
	assert.Equal(t, "plant/temp", updates[0].Topic)
	assert.Equal(t, 23.5, updates[0].DataPoint.Value)
	// The point carries the registered hierarchical path.
	assert.Equal(t, "Acme/Plant1", updates[0].DataPoint.Path.FullPath())

	latest, err := e.realtime.GetLatest(context.Background(), "plant/temp")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 23.5, latest.Value)

	stats := svc.Statistics()
	assert.EqualValues(t, 1, stats.Received)
	assert.EqualValues(t, 0, stats.Mapped)
}

func TestIngestUnknownTopicFallsBackToDiscovery(t *testing.T) {
	e := newEnv(t)

	done := make(chan struct{}, 8)
	e.bus.Subscribe(events.KindTopicDataUpdated, "t", func(events.Event) { done <- struct{}{} })

	svc := e.service(t, automap.Config{Enabled: false})
	e.desc.conns["conn-1"].HandleMessage("mystery/sensor", "", []byte(`1`))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no TopicDataUpdated event")
	}

	// The fallback registered an unverified configuration.
	cfg, ok := e.repo.GetByTopicAndSource("mystery/sensor", "fake")
	require.True(t, ok)
	assert.False(t, cfg.IsVerified)
	assert.Equal(t, "", cfg.NSPath)

	assert.EqualValues(t, 1, svc.Statistics().Discovered)
}

func TestIngestAutoMapsNewTopics(t *testing.T) {
	e := newEnv(t)

	p, err := e.registry.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	_, err = e.registry.CreateNamespace(context.Background(), api.NamespaceNode{
		Name: "Sensors", HierarchicalPath: p, AutoVerifyTopics: true,
	})
	require.NoError(t, err)

	done := make(chan struct{}, 8)
	e.bus.Subscribe(events.KindTopicDataUpdated, "t", func(events.Event) { done <- struct{}{} })

	svc := e.service(t, automap.Config{Enabled: true, MinimumConfidence: 0.7, MaxSearchDepth: 8})
	e.desc.conns["conn-1"].HandleMessage("acme/plant1/sensors/temp", "", []byte(`21`))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no TopicDataUpdated event")
	}

	cfg, ok := e.repo.GetByTopicAndSource("acme/plant1/sensors/temp", "fake")
	require.True(t, ok)
	assert.Equal(t, "Acme/Plant1/Sensors", cfg.NSPath)
	assert.EqualValues(t, 1, svc.Statistics().Mapped)
}

func TestSecondServiceSharesTransport(t *testing.T) {
	e := newEnv(t)
	_ = e.service(t, automap.Config{Enabled: false})

	mapper := automap.NewMapper(automap.Config{Enabled: false}, e.registry, e.repo, e.bus)
	second := NewService(Config{
		Name:         "svc-2",
		ConnectionID: "conn-1",
		Inputs:       []api.InputConfiguration{{ID: "all", IsEnabled: true, TopicFilter: "#"}},
	}, e.manager, mapper, automap.NewDiscovery(e.repo), e.repo, e.processor)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(context.Background())

	infos := e.manager.List()
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Subscribers)
}
