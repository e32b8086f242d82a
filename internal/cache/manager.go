package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// TopicSource is the repository slice the cache reads through to.
type TopicSource interface {
	GetByTopic(topic string) (api.TopicConfiguration, bool)
}

// LatestSource is the realtime store slice serving latest-value fallthrough.
type LatestSource interface {
	GetLatest(ctx context.Context, topic string) (*api.DataPoint, error)
}

// Config sizes and ages the three tiers. Zero values fall back to the
// defaults below.
type Config struct {
	L1Size int
	L2Size int
	L3Size int

	L1MaxIdle time.Duration
	L2MaxIdle time.Duration
	L3MaxIdle time.Duration

	// DemoteThreshold bounds how stale an expired L1 entry may be and still
	// be worth serialising into L2 instead of dropping.
	DemoteThreshold time.Duration

	// L2ToL3Threshold bounds how stale an expired L2 entry may be and still
	// leave an L3 marker behind.
	L2ToL3Threshold time.Duration

	MaintenanceInterval time.Duration
	WarmInterval        time.Duration
	WarmTopK            int
}

// DefaultConfig returns the stock tier parameters.
func DefaultConfig() Config {
	return Config{
		L1Size:              10_000,
		L2Size:              50_000,
		L3Size:              100_000,
		L1MaxIdle:           15 * time.Minute,
		L2MaxIdle:           2 * time.Hour,
		L3MaxIdle:           24 * time.Hour,
		DemoteThreshold:     30 * time.Minute,
		L2ToL3Threshold:     4 * time.Hour,
		MaintenanceInterval: 5 * time.Minute,
		WarmInterval:        10 * time.Minute,
		WarmTopK:            100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.L1Size <= 0 {
		c.L1Size = def.L1Size
	}
	if c.L2Size <= 0 {
		c.L2Size = def.L2Size
	}
	if c.L3Size <= 0 {
		c.L3Size = def.L3Size
	}
	if c.L1MaxIdle <= 0 {
		c.L1MaxIdle = def.L1MaxIdle
	}
	if c.L2MaxIdle <= 0 {
		c.L2MaxIdle = def.L2MaxIdle
	}
	if c.L3MaxIdle <= 0 {
		c.L3MaxIdle = def.L3MaxIdle
	}
	if c.DemoteThreshold <= 0 {
		c.DemoteThreshold = def.DemoteThreshold
	}
	if c.L2ToL3Threshold <= 0 {
		c.L2ToL3Threshold = def.L2ToL3Threshold
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = def.MaintenanceInterval
	}
	if c.WarmInterval <= 0 {
		c.WarmInterval = def.WarmInterval
	}
	if c.WarmTopK <= 0 {
		c.WarmTopK = def.WarmTopK
	}
	return c
}

// Manager is the multi-level topic cache: L1 holds decoded entries, L2
// compressed blobs, L3 presence markers. Reads fall through tier by tier to
// the repository; a missing key is a repository read, never an error.
//
// Tier maps are size-bounded LRUs and safe for concurrent use; per-entry
// counters are atomics so hit bookkeeping never takes the tier locks twice.
type Manager struct {
	config Config

	l1 *lru.Cache[string, *l1Entry]
	l2 *lru.Cache[string, *l2Entry]
	l3 *lru.Cache[string, *l3Marker]

	topics TopicSource
	latest LatestSource

	stats statCounters

	cancel context.CancelFunc
	done   chan struct{}
}

type statCounters struct {
	l1Hits     atomic.Int64
	l2Hits     atomic.Int64
	l3Hints    atomic.Int64
	misses     atomic.Int64
	promotions atomic.Int64
	demotions  atomic.Int64
	evictions  atomic.Int64
}

// NewManager builds a cache over the given read-through sources.
func NewManager(cfg Config, topics TopicSource, latest LatestSource) (*Manager, error) {
	cfg = cfg.withDefaults()
	m := &Manager{config: cfg, topics: topics, latest: latest}

	var err error
	if m.l1, err = lru.NewWithEvict[string, *l1Entry](cfg.L1Size, func(string, *l1Entry) {
		m.stats.evictions.Add(1)
	}); err != nil {
		return nil, err
	}
	if m.l2, err = lru.NewWithEvict[string, *l2Entry](cfg.L2Size, func(string, *l2Entry) {
		m.stats.evictions.Add(1)
	}); err != nil {
		return nil, err
	}
	if m.l3, err = lru.New[string, *l3Marker](cfg.L3Size); err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches the periodic maintenance and warming loops.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		maintain := time.NewTicker(m.config.MaintenanceInterval)
		warm := time.NewTicker(m.config.WarmInterval)
		defer maintain.Stop()
		defer warm.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-maintain.C:
				m.Maintain(time.Now())
			case <-warm.C:
				m.WarmTopEntries(time.Now())
			}
		}
	}()
	logging.Info("Cache", "started (L1=%d L2=%d L3=%d)", m.config.L1Size, m.config.L2Size, m.config.L3Size)
}

// Stop terminates the background loops.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// GetTopic serves the topic configuration through the tiers.
func (m *Manager) GetTopic(ctx context.Context, topic string) (api.TopicConfiguration, error) {
	key := cacheKey(topic)
	now := time.Now()

	// L1: decoded, freshest. Latest-only stubs created by UpsertLatest have
	// no configuration id and must not satisfy a config read.
	if e, ok := m.l1.Get(key); ok && e.config.ID != "" && !m.expired(e.lastAccessed.Load(), m.config.L1MaxIdle, now) {
		e.touch(now)
		m.stats.l1Hits.Add(1)
		return e.config, nil
	}

	// L2: deserialise and promote.
	if e, ok := m.l2.Get(key); ok && !m.expired(e.lastAccessed.Load(), m.config.L2MaxIdle, now) {
		decoded, err := decodeEntry(e.blob)
		if err == nil {
			e.touch(now)
			m.stats.l2Hits.Add(1)
			m.stats.promotions.Add(1)
			m.insertL1(key, decoded, now)
			return decoded.Config, nil
		}
		logging.Warn("Cache", "dropping corrupt L2 blob for %s: %v", logging.TruncateTopic(topic), err)
		m.l2.Remove(key)
	}

	// L3: only a hint that the repository likely has it; fall through.
	if _, ok := m.l3.Get(key); ok {
		m.stats.l3Hints.Add(1)
	}

	// Read through to the repository.
	if err := ctx.Err(); err != nil {
		return api.TopicConfiguration{}, err
	}
	cfg, found := m.topics.GetByTopic(topic)
	if !found {
		m.stats.misses.Add(1)
		return api.TopicConfiguration{}, api.NewTopicNotFoundError(topic)
	}

	m.populate(key, cachedValue{Config: cfg}, now)
	return cfg, nil
}

// GetLatest serves the latest data point for a topic, reading through to
// the realtime store when the cached entry has no value yet.
func (m *Manager) GetLatest(ctx context.Context, topic string) (*api.DataPoint, error) {
	key := cacheKey(topic)
	now := time.Now()

	if e, ok := m.l1.Get(key); ok && e.latest != nil {
		e.touch(now)
		m.stats.l1Hits.Add(1)
		dp := *e.latest
		return &dp, nil
	}

	if m.latest == nil {
		return nil, nil
	}
	dp, err := m.latest.GetLatest(ctx, topic)
	if err != nil || dp == nil {
		return dp, err
	}

	if e, ok := m.l1.Get(key); ok {
		e.setLatest(dp)
	}
	return dp, nil
}

// Invalidate removes the topic from all tiers.
func (m *Manager) Invalidate(topic string) {
	key := cacheKey(topic)
	m.l1.Remove(key)
	m.l2.Remove(key)
	m.l3.Remove(key)
}

// Warm inserts a known-fresh configuration into the hot tier (and its
// serialised form into L2).
func (m *Manager) Warm(t api.TopicConfiguration) {
	m.populate(cacheKey(t.Topic), cachedValue{Config: t}, time.Now())
}

// UpsertLatest records a new latest value for the topic in the hot tier.
// Called from the TopicDataUpdated subscription.
func (m *Manager) UpsertLatest(topic string, dp api.DataPoint) {
	key := cacheKey(topic)
	now := time.Now()
	if e, ok := m.l1.Get(key); ok {
		e.setLatest(&dp)
		e.touch(now)
		return
	}
	// No config cached yet: hold the latest value alone so a subsequent
	// read still hits.
	e := newL1Entry(cachedValue{Config: api.TopicConfiguration{Topic: topic}}, now)
	e.setLatest(&dp)
	m.l1.Add(key, e)
}

// Statistics returns an immutable snapshot of cache behaviour.
func (m *Manager) Statistics() api.CacheStatistics {
	return api.CacheStatistics{
		L1Entries:  int64(m.l1.Len()),
		L2Entries:  int64(m.l2.Len()),
		L3Entries:  int64(m.l3.Len()),
		L1Hits:     m.stats.l1Hits.Load(),
		L2Hits:     m.stats.l2Hits.Load(),
		L3Hints:    m.stats.l3Hints.Load(),
		Misses:     m.stats.misses.Load(),
		Promotions: m.stats.promotions.Load(),
		Demotions:  m.stats.demotions.Load(),
		Evictions:  m.stats.evictions.Load(),
	}
}

func (m *Manager) expired(lastAccessedNano int64, maxIdle time.Duration, now time.Time) bool {
	return now.Sub(time.Unix(0, lastAccessedNano)) > maxIdle
}

func (m *Manager) insertL1(key string, v cachedValue, now time.Time) {
	m.l1.Add(key, newL1Entry(v, now))
}

// populate fills all three tiers after a repository hit or warm call.
func (m *Manager) populate(key string, v cachedValue, now time.Time) {
	m.insertL1(key, v, now)
	if blob, err := encodeEntry(v); err == nil {
		m.l2.Add(key, newL2Entry(blob, now))
	}
	m.l3.Add(key, &l3Marker{lastSeen: now})
}
