package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
	"unshub/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	api.ResetHandlers()
	t.Cleanup(api.ResetHandlers)

	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.DataDir = dir + "/data"
	cfg.MCP.Port = 0 // keep the query server off well-known ports in tests
	cfg.Queue.Lanes = 2
	cfg.Queue.LaneCapacity = 16

	a, err := New(dir, cfg)
	require.NoError(t, err)
	return a
}

func TestNewRegistersHandlers(t *testing.T) {
	newTestApp(t)

	assert.NotNil(t, api.GetHierarchy())
	assert.NotNil(t, api.GetTopicRepository())
	assert.NotNil(t, api.GetCache())
	assert.NotNil(t, api.GetConnectionManager())
	assert.NotNil(t, api.GetRealtimeStore())
	assert.NotNil(t, api.GetHistoricalStore())
	assert.NotNil(t, api.GetStatus())
}

func TestSystemStatusCounts(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	p, err := a.hierarchyReg.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)

	_, err = a.topicRepo.Create(ctx, api.TopicConfiguration{
		Topic: "plant/temp", UNSName: "temp", Path: p, NSPath: "Acme/Plant1",
		SourceType: "mqtt", IsVerified: true,
	})
	require.NoError(t, err)
	_, err = a.topicRepo.Create(ctx, api.TopicConfiguration{
		Topic: "stray/x", SourceType: "nats",
	})
	require.NoError(t, err)

	require.NoError(t, a.realtime.Store(ctx, api.DataPoint{
		Topic: "plant/temp", Value: 1.0, Timestamp: time.Now(),
	}))

	status, err := a.GetSystemStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalTopics)
	assert.Equal(t, 1, status.VerifiedTopics)
	assert.Equal(t, 1, status.AssignedTopics)
	assert.Equal(t, 1, status.ActiveTopics)
	assert.Equal(t, 1, status.TopicsPerSource["mqtt"])
	assert.Equal(t, 1, status.TopicsPerSource["nats"])
}

func TestPersistedEntitiesSurviveRestart(t *testing.T) {
	api.ResetHandlers()
	t.Cleanup(api.ResetHandlers)

	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.DataDir = dir + "/data"

	first, err := New(dir, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	p, err := first.hierarchyReg.CreatePathFromString("Acme/Plant1")
	require.NoError(t, err)
	_, err = first.hierarchyReg.CreateNamespace(ctx, api.NamespaceNode{Name: "OEE", HierarchicalPath: p})
	require.NoError(t, err)
	_, err = first.topicRepo.Create(ctx, api.TopicConfiguration{
		Topic: "plant/temp", SourceType: "mqtt", NSPath: "Acme/Plant1/OEE", Path: p,
	})
	require.NoError(t, err)

	// A fresh app over the same data directory sees the entities.
	second, err := New(dir, cfg)
	require.NoError(t, err)

	_, ok := second.topicRepo.GetByTopicAndSource("plant/temp", "mqtt")
	assert.True(t, ok)
	_, ok = second.hierarchyReg.FindNamespaceByPath("Acme/Plant1/OEE")
	assert.True(t, ok)
}

func TestConfigReloadSwapsMapperAndConnections(t *testing.T) {
	a := newTestApp(t)

	reloaded := config.GetDefaultConfig()
	reloaded.DataDir = a.config.DataDir
	reloaded.AutoMapper.Enabled = false
	reloaded.Connections = []api.ConnectionConfiguration{
		{ID: "n1", ConnectionType: "nats", Name: "bus", IsEnabled: false,
			Config: map[string]interface{}{"serverUrl": "nats://localhost:4222"}},
	}

	a.onConfigReload(reloaded)

	infos := a.connManager.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "n1", infos[0].ID)

	// A second reload without the connection retires it.
	reloaded.Connections = nil
	a.onConfigReload(reloaded)
	assert.Empty(t, a.connManager.List())
}
