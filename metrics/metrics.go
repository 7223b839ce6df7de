// Package metrics provides lightweight counters and gauges for the
// MEV-protection core. Subsystems record through the package-level helpers;
// the collector aggregates tagged entries for export or inspection in tests.
package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Collector aggregates counter and gauge values keyed by name plus sorted
// tags. All methods are safe for concurrent use.
type Collector struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
	}
}

// Inc increments a counter by one.
func (c *Collector) Inc(name string, tags map[string]string) {
	c.Add(name, tags, 1)
}

// Add increments a counter by delta.
func (c *Collector) Add(name string, tags map[string]string, delta int64) {
	k := key(name, tags)
	c.mu.Lock()
	c.counters[k] += delta
	c.mu.Unlock()
}

// SetGauge records the latest value for a gauge.
func (c *Collector) SetGauge(name string, tags map[string]string, value int64) {
	k := key(name, tags)
	c.mu.Lock()
	c.gauges[k] = value
	c.mu.Unlock()
}

// Counter returns the current value of a counter.
func (c *Collector) Counter(name string, tags map[string]string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[key(name, tags)]
}

// Gauge returns the latest value of a gauge.
func (c *Collector) Gauge(name string, tags map[string]string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[key(name, tags)]
}

// key builds a stable identity from the metric name and sorted tags.
func key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// defaultCollector backs the package-level helpers.
var defaultCollector = NewCollector()

// Default returns the package-level collector.
func Default() *Collector { return defaultCollector }

// Inc increments a counter on the default collector.
func Inc(name string, tags map[string]string) { defaultCollector.Inc(name, tags) }

// Add increments a counter by delta on the default collector.
func Add(name string, tags map[string]string, delta int64) { defaultCollector.Add(name, tags, delta) }

// SetGauge records a gauge value on the default collector.
func SetGauge(name string, tags map[string]string, value int64) {
	defaultCollector.SetGauge(name, tags, value)
}
