package routing

import (
	"sync"
	"time"

	"github.com/dshills/courier/key"
)

// Metrics accumulates per-key delivery timings. Collection is off unless
// enabled; the enabled flag gates both recording and reading, and disabling
// clears everything accumulated so far. Metrics do not survive a toggle-off.
type Metrics struct {
	mu      sync.RWMutex
	enabled bool
	perKey  map[key.Key]*KeyMetrics
}

// KeyMetrics holds the timing accumulation for one key.
type KeyMetrics struct {
	Count uint64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Average returns the mean duration per recorded delivery. It is derived,
// never stored.
func (km KeyMetrics) Average() time.Duration {
	if km.Count == 0 {
		return 0
	}
	return km.Total / time.Duration(km.Count)
}

// newMetrics creates a metrics collector.
func newMetrics(enabled bool) *Metrics {
	return &Metrics{
		enabled: enabled,
		perKey:  make(map[key.Key]*KeyMetrics),
	}
}

// SetEnabled turns collection on or off. Turning it off clears all
// accumulated state.
func (m *Metrics) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = enabled
	if !enabled {
		m.perKey = make(map[key.Key]*KeyMetrics)
	}
}

// Enabled reports whether collection is on.
func (m *Metrics) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Record adds one sample for the key. A no-op while disabled.
func (m *Metrics) Record(k key.Key, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}

	km := m.perKey[k]
	if km == nil {
		km = &KeyMetrics{
			Min: elapsed,
			Max: elapsed,
		}
		m.perKey[k] = km
	}

	km.Count++
	km.Total += elapsed

	if elapsed < km.Min {
		km.Min = elapsed
	}
	if elapsed > km.Max {
		km.Max = elapsed
	}
}

// Get returns the accumulated metrics for a key. The second return reports
// whether any samples exist; it is always false while disabled.
func (m *Metrics) Get(k key.Key) (KeyMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.enabled {
		return KeyMetrics{}, false
	}

	km := m.perKey[k]
	if km == nil {
		return KeyMetrics{}, false
	}
	return *km, true
}

// All returns a copy of the metrics for every key with samples. Empty while
// disabled.
func (m *Metrics) All() map[key.Key]KeyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[key.Key]KeyMetrics, len(m.perKey))
	if !m.enabled {
		return out
	}
	for k, km := range m.perKey {
		out[k] = *km
	}
	return out
}

// Clear drops all accumulated samples without changing the enabled flag.
func (m *Metrics) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perKey = make(map[key.Key]*KeyMetrics)
}
