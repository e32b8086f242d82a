package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"unshub/internal/api"
)

// cachedValue is what one cache slot carries: the topic configuration and,
// once seen, the latest data point.
type cachedValue struct {
	Config api.TopicConfiguration `json:"config"`
	Latest *api.DataPoint         `json:"latest,omitempty"`
}

// l1Entry is a hot-tier slot: decoded value plus access bookkeeping.
type l1Entry struct {
	mu     sync.RWMutex
	config api.TopicConfiguration
	latest *api.DataPoint

	storedAt     time.Time
	lastAccessed atomic.Int64 // unix nanos
	accessCount  atomic.Int64
}

func newL1Entry(v cachedValue, now time.Time) *l1Entry {
	e := &l1Entry{config: v.Config, latest: v.Latest, storedAt: now}
	e.lastAccessed.Store(now.UnixNano())
	return e
}

func (e *l1Entry) touch(now time.Time) {
	e.lastAccessed.Store(now.UnixNano())
	e.accessCount.Add(1)
}

func (e *l1Entry) setLatest(dp *api.DataPoint) {
	e.mu.Lock()
	e.latest = dp
	e.mu.Unlock()
}

func (e *l1Entry) value() cachedValue {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cachedValue{Config: e.config, Latest: e.latest}
}

// l2Entry is a warm-tier slot: the gzip-compressed JSON form of the value.
type l2Entry struct {
	blob         []byte
	storedAt     time.Time
	lastAccessed atomic.Int64
	accessCount  atomic.Int64
}

func newL2Entry(blob []byte, now time.Time) *l2Entry {
	e := &l2Entry{blob: blob, storedAt: now}
	e.lastAccessed.Store(now.UnixNano())
	return e
}

func (e *l2Entry) touch(now time.Time) {
	e.lastAccessed.Store(now.UnixNano())
	e.accessCount.Add(1)
}

// l3Marker is a cold-tier slot: presence only, no payload.
type l3Marker struct {
	lastSeen time.Time
}

// cacheKey normalises topics for tier lookups the same way the repository
// matches them.
func cacheKey(topic string) string {
	return strings.ToLower(topic)
}

// encodeEntry serialises and compresses a value for the warm tier.
func encodeEntry(v cachedValue) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEntry reverses encodeEntry.
func decodeEntry(blob []byte) (cachedValue, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return cachedValue{}, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return cachedValue{}, err
	}
	var v cachedValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return cachedValue{}, err
	}
	return v, nil
}
