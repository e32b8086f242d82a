package app

import (
	"context"
	"fmt"
	"time"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/cache"
	"unshub/internal/config"
	"unshub/internal/connections"
	"unshub/internal/connections/mqttconn"
	"unshub/internal/connections/natsconn"
	"unshub/internal/connections/socketio"
	"unshub/internal/events"
	"unshub/internal/hierarchy"
	"unshub/internal/ingest"
	"unshub/internal/mcpserver"
	"unshub/internal/metrics"
	"unshub/internal/publish"
	"unshub/internal/queue"
	"unshub/internal/storage"
	"unshub/internal/store"
	"unshub/internal/topics"
	"unshub/pkg/logging"
)

// App composes the hub: registries, cache, queue, connection runtime,
// ingestion services, publishers and the query surface. Construction wires
// everything and registers the api handlers; Start and Stop drive the
// lifecycle.
type App struct {
	configPath string
	config     config.HubConfig

	bus          *events.Bus
	hierarchyReg *hierarchy.Registry
	topicRepo    *topics.Repository
	entityStore  *storage.EntityStore

	realtime   api.RealtimeStoreHandler
	historical api.HistoricalStoreHandler

	cacheMgr   *cache.Manager
	cacheUnsub func()

	typeRegistry *connections.TypeRegistry
	connManager  *connections.Manager

	pointProcessor  *queue.Processor[api.DataPoint]
	exportProcessor *queue.Processor[api.DataPoint]

	mapper    *automap.Mapper
	discovery *automap.Discovery
	ingesters []*ingest.Service

	modelPublisher *publish.ModelPublisher
	queryServer    *mcpserver.Server
	metrics        *metrics.Metrics
	watcher        *config.Watcher

	// configConnIDs tracks connection ids sourced from config.yaml so a
	// reload can retire removed ones without touching persisted entities.
	configConnIDs map[string]bool
}

// New wires the application from its configuration. configPath is the
// directory config.yaml was loaded from; the watcher observes it.
func New(configPath string, cfg config.HubConfig) (*App, error) {
	a := &App{
		configPath:    configPath,
		config:        cfg,
		bus:           events.NewBus(),
		configConnIDs: make(map[string]bool),
	}

	// Persistence and registries.
	a.entityStore = storage.NewEntityStore(cfg.DataDir)
	a.hierarchyReg = hierarchy.NewRegistry(a.entityStore)
	a.topicRepo = topics.NewRepository(a.bus, a.entityStore)
	if err := a.restorePersistedEntities(); err != nil {
		return nil, err
	}

	// Stores.
	a.realtime = store.NewRetryingRealtimeStore(store.NewRealtimeStore(), 3)
	if cfg.History.Enabled {
		a.historical = store.NewMemoryHistoricalStore(cfg.History.MaxPerTopic)
	} else {
		a.historical = store.NewNoopHistoricalStore()
	}

	// Queue processors: one for the store/announce pipeline, one for
	// downstream export so neither can starve the other.
	a.pointProcessor = queue.NewProcessor("points", cfg.Queue.ToQueueConfig(),
		ingest.NewPointProcessor(a.realtime, a.historical, a.bus))
	a.exportProcessor = queue.NewProcessor("export", cfg.Queue.ToQueueConfig(),
		func(ctx context.Context, dp api.DataPoint) error {
			a.connManager.Broadcast(ctx, dp)
			return nil
		})
	a.hierarchyReg.SetPauseHook(a.pointProcessor.Pause)

	// Cache over repository and realtime store.
	var err error
	a.cacheMgr, err = cache.NewManager(cfg.Cache.ToCacheConfig(), a.topicRepo, a.realtime)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}
	a.cacheUnsub = a.cacheMgr.SubscribeTo(a.bus)

	// Connection runtime with the built-in types.
	a.typeRegistry = connections.NewTypeRegistry()
	for _, desc := range []connections.Descriptor{
		mqttconn.Descriptor{}, socketio.Descriptor{}, natsconn.Descriptor{},
	} {
		if err := a.typeRegistry.Register(desc); err != nil {
			return nil, err
		}
	}
	a.connManager = connections.NewManager(a.typeRegistry)
	a.connManager.SetStatusCallback(func(change api.StatusChange) {
		a.bus.Publish(events.ConnectionStatusEvent{Status: change, Timestamp: change.Timestamp})
	})

	// Topic binding.
	a.mapper = automap.NewMapper(cfg.AutoMapper, a.hierarchyReg, a.topicRepo, a.bus)
	a.discovery = automap.NewDiscovery(a.topicRepo)

	// Export: data updates fan out to sink connections off the bus via the
	// export processor, never inline in a bus handler.
	a.bus.Subscribe(events.KindTopicDataUpdated, "export-service", func(e events.Event) {
		evt := e.(events.TopicDataUpdatedEvent)
		if err := a.exportProcessor.Enqueue(context.Background(), evt.DataPoint, false); err != nil {
			logging.Debug("App", "export enqueue: %v", err)
		}
	})

	// Model publisher and query surface.
	modelInterval := time.Duration(cfg.Model.RepublishIntervalMinutes) * time.Minute
	a.modelPublisher = publish.NewModelPublisher(modelInterval, a.hierarchyReg,
		a.connManager.ModelTargets,
		func(ctx context.Context, target publish.ModelTarget, topic string, payload []byte) error {
			return a.connManager.SendVia(ctx, target.ConnectionID, topic, payload, target.Output.QoS)
		})
	a.queryServer = mcpserver.NewServer(cfg.MCP)

	a.metrics, err = metrics.Init(metrics.Config{
		Enabled:        cfg.Metrics.Enabled,
		ExportInterval: time.Duration(cfg.Metrics.ExportIntervalSeconds) * time.Second,
	}, metrics.Observers{
		Queue: a.pointProcessor.Statistics,
		Cache: a.cacheMgr.Statistics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	a.bus.Subscribe(events.KindTopicDataUpdated, "metrics", func(events.Event) {
		a.metrics.IngestedPoints.Add(context.Background(), 1)
	})
	a.bus.Subscribe(events.KindTopicAdded, "metrics", func(events.Event) {
		a.metrics.MappedTopics.Add(context.Background(), 1)
	})

	a.registerHandlers()
	return a, nil
}

// registerHandlers publishes the subsystem surfaces through the api
// service locator.
func (a *App) registerHandlers() {
	api.RegisterHierarchy(a.hierarchyReg)
	api.RegisterTopicRepository(a.topicRepo)
	api.RegisterCache(a.cacheMgr)
	api.RegisterConnectionManager(a.connManager)
	api.RegisterRealtimeStore(a.realtime)
	api.RegisterHistoricalStore(a.historical)
	api.RegisterStatus(a)
}

// restorePersistedEntities loads hierarchy configurations, namespaces and
// topics from the data directory without re-emitting events.
func (a *App) restorePersistedEntities() error {
	configs, err := a.entityStore.LoadHierarchyConfigurations()
	if err != nil {
		return fmt.Errorf("failed to load hierarchy configurations: %w", err)
	}
	for _, cfg := range configs {
		a.hierarchyReg.RestoreConfiguration(cfg)
	}

	namespaces, err := a.entityStore.LoadNamespaces()
	if err != nil {
		return fmt.Errorf("failed to load namespaces: %w", err)
	}
	for _, ns := range namespaces {
		a.hierarchyReg.RestoreNamespace(ns)
	}

	persisted, err := a.entityStore.LoadTopics()
	if err != nil {
		return fmt.Errorf("failed to load topics: %w", err)
	}
	for _, t := range persisted {
		a.topicRepo.Restore(t)
	}

	logging.Info("App", "restored %d hierarchy configs, %d namespaces, %d topics",
		len(configs), len(namespaces), len(persisted))
	return nil
}

// Start brings the hub up: processors, cache loops, connections, ingestion
// services, publishers, query server and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.pointProcessor.Start(ctx)
	a.exportProcessor.Start(ctx)
	a.cacheMgr.Start(ctx)

	if err := a.applyConnections(ctx, a.config.Connections); err != nil {
		return err
	}

	// Persisted connection definitions join the config-sourced ones.
	persisted, err := a.entityStore.LoadConnections()
	if err != nil {
		logging.Warn("App", "failed to load persisted connections: %v", err)
	}
	for _, cfg := range persisted {
		if a.configConnIDs[cfg.ID] {
			continue // config.yaml wins over the persisted copy
		}
		if err := a.connManager.Apply(ctx, cfg); err != nil {
			logging.Warn("App", "failed to apply persisted connection %s: %v", cfg.ID, err)
		}
	}

	a.startIngestion(ctx)
	a.modelPublisher.Start(ctx)

	if err := a.queryServer.Start(ctx); err != nil {
		return err
	}

	a.watcher = config.NewWatcher(a.configPath, a.onConfigReload)
	if err := a.watcher.Start(ctx); err != nil {
		logging.Warn("App", "config watcher unavailable: %v", err)
	}

	logging.Info("App", "unshub started (%d connections, query surface at %s)",
		len(a.connManager.List()), a.queryServer.Endpoint())
	return nil
}

// Stop tears the hub down in reverse order, bounded by ctx.
func (a *App) Stop(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if err := a.queryServer.Stop(ctx); err != nil {
		logging.Warn("App", "query server stop: %v", err)
	}
	a.modelPublisher.Stop()

	for _, svc := range a.ingesters {
		svc.Stop(ctx)
	}
	a.connManager.StopAll(ctx)

	a.exportProcessor.Stop()
	a.pointProcessor.Stop()
	a.cacheMgr.Stop()
	a.cacheUnsub()

	if err := a.metrics.Shutdown(ctx); err != nil {
		logging.Warn("App", "metrics shutdown: %v", err)
	}
	logging.Info("App", "unshub stopped")
}

// applyConnections applies config-sourced connection definitions.
func (a *App) applyConnections(ctx context.Context, conns []api.ConnectionConfiguration) error {
	seen := make(map[string]bool, len(conns))
	for _, cfg := range conns {
		seen[cfg.ID] = true
		if err := a.connManager.Apply(ctx, cfg); err != nil {
			logging.Warn("App", "failed to apply connection %s: %v", cfg.ID, err)
		}
	}

	// Retire config-sourced connections that disappeared.
	for id := range a.configConnIDs {
		if !seen[id] {
			if err := a.connManager.Remove(ctx, id); err != nil {
				logging.Warn("App", "failed to remove connection %s: %v", id, err)
			}
		}
	}
	a.configConnIDs = seen
	return nil
}

// startIngestion creates one ingestion service per registered connection,
// disabled ones included; acquiring a disabled connection does not start
// it. The connections own their inputs; the services subscribe to
// everything those inputs produce.
func (a *App) startIngestion(ctx context.Context) {
	for _, info := range a.connManager.List() {
		svc := ingest.NewService(ingest.Config{
			Name:         "ingest-" + info.ID,
			ConnectionID: info.ID,
		}, a.connManager, a.mapper, a.discovery, a.topicRepo, a.pointProcessor)
		if err := svc.Start(ctx); err != nil {
			logging.Warn("App", "ingestion for %s: %v", info.ID, err)
			continue
		}
		a.ingesters = append(a.ingesters, svc)
	}
}

// onConfigReload applies a changed configuration: connection definitions
// and the auto-mapper config are hot-swappable, everything else needs a
// restart.
func (a *App) onConfigReload(cfg config.HubConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.mapper.SetConfig(cfg.AutoMapper)
	if err := a.applyConnections(ctx, cfg.Connections); err != nil {
		logging.Warn("App", "config reload: %v", err)
	}
	a.config.AutoMapper = cfg.AutoMapper
	a.config.Connections = cfg.Connections
}
