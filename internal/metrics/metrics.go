package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"unshub/internal/api"
	"unshub/internal/queue"
	"unshub/pkg/logging"
)

// Config controls the metrics pipeline.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	ExportInterval time.Duration `yaml:"exportInterval,omitempty"`
}

// Observers are the statistics snapshots the observable instruments read.
// Nil funcs skip their instruments.
type Observers struct {
	Queue func() queue.Snapshot
	Cache func() api.CacheStatistics
}

// Metrics bundles the hub's OpenTelemetry instruments. With Enabled=false
// the instruments come from the global (no-op) meter provider, so call
// sites never branch.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	// Event-driven counters, incremented at the source.
	IngestedPoints metric.Int64Counter
	MappedTopics   metric.Int64Counter
}

// Init sets up the meter provider (stdout exporter with a periodic reader)
// and creates the hub's instruments. Queue and cache behaviour is exposed
// through observable instruments fed by the Observers snapshots.
func Init(cfg Config, obs Observers) (*Metrics, error) {
	m := &Metrics{}

	if cfg.Enabled {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = time.Minute
		}
		m.provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		)
		otel.SetMeterProvider(m.provider)
		logging.Info("Metrics", "otel metrics enabled (export every %s)", interval)
	}

	meter := otel.Meter("unshub")

	var err error
	if m.IngestedPoints, err = meter.Int64Counter("unshub.ingest.points",
		metric.WithDescription("Data points processed by the ingestion pipeline")); err != nil {
		return nil, err
	}
	if m.MappedTopics, err = meter.Int64Counter("unshub.automap.topics_added",
		metric.WithDescription("Topic configurations registered by mapping or discovery")); err != nil {
		return nil, err
	}

	if obs.Queue != nil {
		if err := registerQueueInstruments(meter, obs.Queue); err != nil {
			return nil, err
		}
	}
	if obs.Cache != nil {
		if err := registerCacheInstruments(meter, obs.Cache); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerQueueInstruments(meter metric.Meter, snapshot func() queue.Snapshot) error {
	depth, err := meter.Int64ObservableGauge("unshub.queue.depth",
		metric.WithDescription("Items queued or in flight on the point processor"))
	if err != nil {
		return err
	}
	processed, err := meter.Int64ObservableCounter("unshub.queue.processed",
		metric.WithDescription("Items processed by the point processor"))
	if err != nil {
		return err
	}
	errs, err := meter.Int64ObservableCounter("unshub.queue.errors",
		metric.WithDescription("Processor failures, counted and never retried"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(depth, s.Queued)
		o.ObserveInt64(processed, s.Processed)
		o.ObserveInt64(errs, s.Errors)
		return nil
	}, depth, processed, errs)
	return err
}

func registerCacheInstruments(meter metric.Meter, snapshot func() api.CacheStatistics) error {
	entries, err := meter.Int64ObservableGauge("unshub.cache.entries",
		metric.WithDescription("Entries per cache tier"))
	if err != nil {
		return err
	}
	hits, err := meter.Int64ObservableCounter("unshub.cache.hits",
		metric.WithDescription("Cache hits per tier"))
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter("unshub.cache.misses",
		metric.WithDescription("Cache reads that fell through to the repository"))
	if err != nil {
		return err
	}
	moves, err := meter.Int64ObservableCounter("unshub.cache.tier_moves",
		metric.WithDescription("Promotions and demotions between tiers"))
	if err != nil {
		return err
	}

	tier := func(name string) metric.MeasurementOption {
		return metric.WithAttributes(attribute.String("tier", name))
	}
	direction := func(name string) metric.MeasurementOption {
		return metric.WithAttributes(attribute.String("direction", name))
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(entries, s.L1Entries, tier("l1"))
		o.ObserveInt64(entries, s.L2Entries, tier("l2"))
		o.ObserveInt64(entries, s.L3Entries, tier("l3"))
		o.ObserveInt64(hits, s.L1Hits, tier("l1"))
		o.ObserveInt64(hits, s.L2Hits, tier("l2"))
		o.ObserveInt64(misses, s.Misses)
		o.ObserveInt64(moves, s.Promotions, direction("promotion"))
		o.ObserveInt64(moves, s.Demotions, direction("demotion"))
		return nil
	}, entries, hits, misses, moves)
	return err
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
