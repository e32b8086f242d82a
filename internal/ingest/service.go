package ingest

import (
	"context"
	"sync/atomic"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/connections"
	"unshub/internal/queue"
	"unshub/pkg/logging"
)

// Service is one ingestion service: it subscribes to a shared connection,
// binds every incoming leaf data point to a topic configuration (lookup,
// then auto-map, then unverified-discovery fallback) and hands the point to
// the queue processor. The transport callback stays short: all downstream
// work (stores, event publication) happens on the queue's lanes.
type Service struct {
	name         string
	connectionID string
	inputs       []api.InputConfiguration

	manager   *connections.Manager
	mapper    *automap.Mapper
	discovery *automap.Discovery
	topics    api.TopicRepositoryHandler
	processor *queue.Processor[api.DataPoint]

	handle *connections.Handle
	ctx    context.Context
	cancel context.CancelFunc

	received   atomic.Int64
	mapped     atomic.Int64
	discovered atomic.Int64
	dropped    atomic.Int64
}

// Config assembles a Service.
type Config struct {
	// Name is the subscriber id on the shared connection.
	Name string

	// ConnectionID selects the shared connection to acquire.
	ConnectionID string

	// Inputs are this service's own subscriptions; ids are namespaced by
	// the connection manager so several services can share a connection.
	Inputs []api.InputConfiguration
}

// NewService creates an ingestion service. It is inert until Start.
func NewService(cfg Config, manager *connections.Manager, mapper *automap.Mapper,
	discovery *automap.Discovery, topics api.TopicRepositoryHandler,
	processor *queue.Processor[api.DataPoint]) *Service {
	return &Service{
		name:         cfg.Name,
		connectionID: cfg.ConnectionID,
		inputs:       cfg.Inputs,
		manager:      manager,
		mapper:       mapper,
		discovery:    discovery,
		topics:       topics,
		processor:    processor,
	}
}

// Start acquires the shared connection and attaches the inputs.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	handle, err := s.manager.Acquire(ctx, s.connectionID, s.name)
	if err != nil {
		return err
	}
	s.handle = handle
	handle.OnData(s.onData)

	for _, input := range s.inputs {
		if err := handle.ConfigureInput(ctx, input); err != nil {
			logging.Warn("Ingest", "%s: configure input %s: %v", s.name, input.ID, err)
		}
	}

	logging.Info("Ingest", "%s started on %s (%d inputs)", s.name, s.connectionID, len(s.inputs))
	return nil
}

// Stop releases the shared connection.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.handle != nil {
		s.handle.Release(ctx)
	}
	logging.Info("Ingest", "%s stopped (received=%d mapped=%d discovered=%d dropped=%d)",
		s.name, s.received.Load(), s.mapped.Load(), s.discovered.Load(), s.dropped.Load())
}

// onData is the DataReceived consumer. It binds the point to a topic
// configuration and enqueues it; the enqueue blocks under back-pressure so
// no point is silently dropped.
func (s *Service) onData(dp api.DataPoint, inputID string) {
	s.received.Add(1)

	cfg, ok := s.topics.GetByTopicAndSource(dp.Topic, dp.SourceSystem)
	if !ok {
		mapped, err := s.mapper.Map(s.ctx, dp.Topic, dp.SourceSystem)
		switch {
		case err != nil:
			logging.Warn("Ingest", "%s: mapping %s: %v", s.name, logging.TruncateTopic(dp.Topic), err)
			s.dropped.Add(1)
			return
		case mapped != nil:
			cfg = *mapped
			s.mapped.Add(1)
		default:
			// Below threshold or disabled: fall back to unverified
			// discovery so operators can triage.
			discovered, derr := s.discovery.Register(s.ctx, dp.Topic, dp.SourceSystem)
			if derr != nil {
				logging.Warn("Ingest", "%s: discovery for %s: %v", s.name, logging.TruncateTopic(dp.Topic), derr)
				s.dropped.Add(1)
				return
			}
			cfg = discovered
			s.discovered.Add(1)
		}
	}

	dp.Path = cfg.Path
	if dp.Metadata == nil {
		dp.Metadata = map[string]interface{}{}
	}
	dp.Metadata["inputId"] = inputID
	dp.Metadata["unsName"] = cfg.UNSName

	if err := s.processor.Enqueue(s.ctx, dp, false); err != nil {
		// Cancelled or stopped: the caller observed it, nothing silent.
		s.dropped.Add(1)
		logging.Debug("Ingest", "%s: enqueue observed shutdown: %v", s.name, err)
	}
}

// Statistics is an immutable snapshot of the service counters.
type Statistics struct {
	Received   int64 `json:"received"`
	Mapped     int64 `json:"mapped"`
	Discovered int64 `json:"discovered"`
	Dropped    int64 `json:"dropped"`
}

// Statistics returns the current counters.
func (s *Service) Statistics() Statistics {
	return Statistics{
		Received:   s.received.Load(),
		Mapped:     s.mapped.Load(),
		Discovered: s.discovered.Load(),
		Dropped:    s.dropped.Load(),
	}
}
