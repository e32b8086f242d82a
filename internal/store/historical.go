package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
)

// MemoryHistoricalStore keeps a bounded per-topic history ring in memory.
// It backs development setups and the history read surface's tests; real
// deployments point the handler at a time-series database.
type MemoryHistoricalStore struct {
	mu          sync.RWMutex
	series      map[string][]api.DataPoint // key: lower(topic), ascending by time
	maxPerTopic int
}

// NewMemoryHistoricalStore creates a store keeping up to maxPerTopic points
// per topic (default 10_000 when <= 0).
func NewMemoryHistoricalStore(maxPerTopic int) *MemoryHistoricalStore {
	if maxPerTopic <= 0 {
		maxPerTopic = 10_000
	}
	return &MemoryHistoricalStore{
		series:      make(map[string][]api.DataPoint),
		maxPerTopic: maxPerTopic,
	}
}

// Store appends dp to its topic's series, trimming the oldest points beyond
// the per-topic bound.
func (s *MemoryHistoricalStore) Store(ctx context.Context, dp api.DataPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.ToLower(dp.Topic)

	s.mu.Lock()
	defer s.mu.Unlock()
	series := append(s.series[key], dp)
	// Points usually arrive in order; sort lazily only when they did not.
	if n := len(series); n > 1 && series[n-1].Timestamp.Before(series[n-2].Timestamp) {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	if len(series) > s.maxPerTopic {
		series = series[len(series)-s.maxPerTopic:]
	}
	s.series[key] = series
	return nil
}

// GetHistory returns the topic's points in [from, to], ascending.
func (s *MemoryHistoricalStore) GetHistory(ctx context.Context, topic string, from, to time.Time) ([]api.DataPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.DataPoint
	for _, dp := range s.series[strings.ToLower(topic)] {
		if !dp.Timestamp.Before(from) && !dp.Timestamp.After(to) {
			out = append(out, dp)
		}
	}
	return out, nil
}

// GetHistoryByPath returns points of every topic under the path, ascending
// by time.
func (s *MemoryHistoricalStore) GetHistoryByPath(ctx context.Context, path api.HierarchicalPath, from, to time.Time) ([]api.DataPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := path.FullPath()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.DataPoint
	for _, series := range s.series {
		for _, dp := range series {
			if !api.IsPathPrefix(prefix, dp.Path.FullPath()) {
				continue
			}
			if !dp.Timestamp.Before(from) && !dp.Timestamp.After(to) {
				out = append(out, dp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Archive drops all points older than the cutoff and returns how many.
func (s *MemoryHistoricalStore) Archive(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, series := range s.series {
		idx := sort.Search(len(series), func(i int) bool {
			return !series[i].Timestamp.Before(before)
		})
		if idx > 0 {
			dropped += idx
			s.series[key] = series[idx:]
		}
	}
	return dropped, nil
}

// NoopHistoricalStore discards everything. It satisfies the historical
// store handler so historical storage can be disabled globally.
type NoopHistoricalStore struct{}

// NewNoopHistoricalStore returns the disabled historical store.
func NewNoopHistoricalStore() *NoopHistoricalStore { return &NoopHistoricalStore{} }

func (NoopHistoricalStore) Store(context.Context, api.DataPoint) error { return nil }

func (NoopHistoricalStore) GetHistory(context.Context, string, time.Time, time.Time) ([]api.DataPoint, error) {
	return nil, nil
}

func (NoopHistoricalStore) GetHistoryByPath(context.Context, api.HierarchicalPath, time.Time, time.Time) ([]api.DataPoint, error) {
	return nil, nil
}

func (NoopHistoricalStore) Archive(context.Context, time.Time) (int, error) { return 0, nil }
