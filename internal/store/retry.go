package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// RetryingRealtimeStore decorates a realtime store with a bounded retry for
// contention errors. Non-retryable errors pass through immediately: the
// write path drops them, but the data point still reaches bus subscribers.
type RetryingRealtimeStore struct {
	inner       api.RealtimeStoreHandler
	maxRetries  uint64
	initialWait time.Duration
}

// NewRetryingRealtimeStore wraps inner with up to maxRetries retries after
// the first attempt (default 3) and a small exponential backoff.
func NewRetryingRealtimeStore(inner api.RealtimeStoreHandler, maxRetries int) *RetryingRealtimeStore {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryingRealtimeStore{
		inner:       inner,
		maxRetries:  uint64(maxRetries),
		initialWait: 20 * time.Millisecond,
	}
}

// Store writes through with retry on retryable store errors.
func (s *RetryingRealtimeStore) Store(ctx context.Context, dp api.DataPoint) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(s.exponential(), s.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.inner.Store(ctx, dp)
		if err == nil {
			return nil
		}
		if api.IsRetryableStore(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)

	if err != nil && attempt > 1 {
		logging.Warn("Store", "write for %s failed after %d attempts: %v",
			logging.TruncateTopic(dp.Topic), attempt, err)
	}
	return err
}

func (s *RetryingRealtimeStore) exponential() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialWait
	b.MaxInterval = 500 * time.Millisecond
	b.RandomizationFactor = 0.2
	return b
}

// GetLatest delegates to the inner store.
func (s *RetryingRealtimeStore) GetLatest(ctx context.Context, topic string) (*api.DataPoint, error) {
	return s.inner.GetLatest(ctx, topic)
}

// GetLatestByPath delegates to the inner store.
func (s *RetryingRealtimeStore) GetLatestByPath(ctx context.Context, path api.HierarchicalPath) ([]api.DataPoint, error) {
	return s.inner.GetLatestByPath(ctx, path)
}

// Delete delegates to the inner store.
func (s *RetryingRealtimeStore) Delete(ctx context.Context, topic string) error {
	return s.inner.Delete(ctx, topic)
}
