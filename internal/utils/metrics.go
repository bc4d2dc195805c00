// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	name  string
	value int64
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*Counter),
			histograms: make(map[string]*Histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	// Fast path for existing counters
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if exists {
		atomic.AddInt64(&counter.value, 1)
		return
	}

	m.mu.Lock()
	// Double-check after acquiring write lock
	counter, exists = m.counters[name]
	if !exists {
		counter = &Counter{name: name}
		m.counters[name] = counter
	}
	m.mu.Unlock()

	atomic.AddInt64(&counter.value, 1)
}

// ObserveDuration records a duration observation in milliseconds
func (m *MetricsCollector) ObserveDuration(name string, d time.Duration) {
	m.observe(name, d.Milliseconds())
}

func (m *MetricsCollector) observe(name string, value int64) {
	m.mu.RLock()
	hist, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		hist, exists = m.histograms[name]
		if !exists {
			hist = &Histogram{name: name}
			m.histograms[name] = hist
		}
		m.mu.Unlock()
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	if hist.count == 0 || value < hist.min {
		hist.min = value
	}
	if value > hist.max {
		hist.max = value
	}
	hist.count++
	hist.sum += value
}

// HistogramStats is a point-in-time view of a histogram
type HistogramStats struct {
	Count int64   `json:"count"`
	Sum   int64   `json:"sum_ms"`
	Min   int64   `json:"min_ms"`
	Max   int64   `json:"max_ms"`
	Avg   float64 `json:"avg_ms"`
}

// Snapshot returns the current value of every metric
func (m *MetricsCollector) Snapshot() (map[string]int64, map[string]HistogramStats) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = atomic.LoadInt64(&c.value)
	}

	histograms := make(map[string]HistogramStats, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		stats := HistogramStats{
			Count: h.count,
			Sum:   h.sum,
			Min:   h.min,
			Max:   h.max,
		}
		if h.count > 0 {
			stats.Avg = float64(h.sum) / float64(h.count)
		}
		h.mu.Unlock()
		histograms[name] = stats
	}

	return counters, histograms
}

// Reset clears all collected metrics (used between tests)
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]*Counter)
	m.histograms = make(map[string]*Histogram)
}
