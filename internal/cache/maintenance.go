package cache

import (
	"sort"
	"time"

	"unshub/pkg/logging"
)

// Maintain runs one maintenance cycle at the given instant: expired L1
// entries younger than the demote threshold are serialised into L2, older
// ones dropped; expired L2 entries younger than the L3 threshold leave a
// cold marker, older ones vanish; expired L3 markers are removed.
//
// The periodic loop calls this every MaintenanceInterval; tests call it
// directly with a synthetic clock.
func (m *Manager) Maintain(now time.Time) {
	demoted, dropped := m.maintainL1(now)
	marked, cleared := m.maintainL2(now)
	expired := m.maintainL3(now)

	if demoted+dropped+marked+cleared+expired > 0 {
		logging.Debug("Cache", "maintenance: L1 demoted=%d dropped=%d, L2 marked=%d cleared=%d, L3 expired=%d",
			demoted, dropped, marked, cleared, expired)
	}
}

func (m *Manager) maintainL1(now time.Time) (demoted, dropped int) {
	for _, key := range m.l1.Keys() {
		e, ok := m.l1.Peek(key)
		if !ok {
			continue
		}
		idle := now.Sub(time.Unix(0, e.lastAccessed.Load()))
		if idle <= m.config.L1MaxIdle {
			continue
		}
		if idle <= m.config.DemoteThreshold {
			if blob, err := encodeEntry(e.value()); err == nil {
				l2 := newL2Entry(blob, now)
				l2.lastAccessed.Store(e.lastAccessed.Load())
				l2.accessCount.Store(e.accessCount.Load())
				m.l2.Add(key, l2)
				m.stats.demotions.Add(1)
				demoted++
			}
		} else {
			dropped++
		}
		m.l1.Remove(key)
	}
	return demoted, dropped
}

func (m *Manager) maintainL2(now time.Time) (marked, cleared int) {
	for _, key := range m.l2.Keys() {
		e, ok := m.l2.Peek(key)
		if !ok {
			continue
		}
		idle := now.Sub(time.Unix(0, e.lastAccessed.Load()))
		if idle <= m.config.L2MaxIdle {
			continue
		}
		if idle <= m.config.L2ToL3Threshold {
			m.l3.Add(key, &l3Marker{lastSeen: now})
			marked++
		} else {
			cleared++
		}
		m.l2.Remove(key)
	}
	return marked, cleared
}

func (m *Manager) maintainL3(now time.Time) (expired int) {
	for _, key := range m.l3.Keys() {
		marker, ok := m.l3.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(marker.lastSeen) > m.config.L3MaxIdle {
			m.l3.Remove(key)
			expired++
		}
	}
	return expired
}

// WarmTopEntries promotes the top-K L2 entries by access count that are not
// already hot. The periodic loop calls this every WarmInterval.
func (m *Manager) WarmTopEntries(now time.Time) {
	type candidate struct {
		key   string
		count int64
		entry *l2Entry
	}

	var candidates []candidate
	for _, key := range m.l2.Keys() {
		if m.l1.Contains(key) {
			continue
		}
		if e, ok := m.l2.Peek(key); ok {
			candidates = append(candidates, candidate{key: key, count: e.accessCount.Load(), entry: e})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })

	promoted := 0
	for _, c := range candidates {
		if promoted >= m.config.WarmTopK {
			break
		}
		v, err := decodeEntry(c.entry.blob)
		if err != nil {
			m.l2.Remove(c.key)
			continue
		}
		m.insertL1(c.key, v, now)
		m.stats.promotions.Add(1)
		promoted++
	}
	if promoted > 0 {
		logging.Debug("Cache", "warmed %d entries from L2", promoted)
	}
}
