package ingest

import (
	"context"
	"time"

	"unshub/internal/api"
	"unshub/internal/events"
	"unshub/pkg/logging"
)

// NewPointProcessor builds the queue processor function for ingested data
// points: write the realtime store, write the historical store, then
// announce TopicDataUpdated on the bus.
//
// Store failures follow the error model: the realtime write is retried by
// its decorator; if it still fails the point is dropped from the write path
// but STILL delivered to bus subscribers, so downstream export keeps
// flowing.
func NewPointProcessor(realtime api.RealtimeStoreHandler, historical api.HistoricalStoreHandler, bus *events.Bus) func(ctx context.Context, dp api.DataPoint) error {
	return func(ctx context.Context, dp api.DataPoint) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var storeErr error
		if err := realtime.Store(ctx, dp); err != nil {
			storeErr = err
			logging.Warn("Pipeline", "realtime store rejected %s: %v", logging.TruncateTopic(dp.Topic), err)
		}
		if historical != nil {
			if err := historical.Store(ctx, dp); err != nil {
				logging.Warn("Pipeline", "historical store rejected %s: %v", logging.TruncateTopic(dp.Topic), err)
			}
		}

		bus.Publish(events.TopicDataUpdatedEvent{
			Topic:     dp.Topic,
			DataPoint: dp,
			Timestamp: time.Now().UTC(),
		})
		return storeErr
	}
}
