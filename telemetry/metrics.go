package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentCache lazily creates and caches the otel counters/
// histograms RecordMetric writes to, so repeated calls with the same
// metric name reuse one instrument instead of registering a new one
// every time.
type instrumentCache struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func newInstrumentCache(meter metric.Meter) *instrumentCache {
	return &instrumentCache{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (c *instrumentCache) recordCounter(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if counter, ok = c.counters[name]; !ok {
			var err error
			counter, err = c.meter.Float64Counter(name)
			if err != nil {
				c.mu.Unlock()
				return
			}
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (c *instrumentCache) recordHistogram(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	c.mu.RLock()
	hist, ok := c.histograms[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if hist, ok = c.histograms[name]; !ok {
			var err error
			hist, err = c.meter.Float64Histogram(name)
			if err != nil {
				c.mu.Unlock()
				return
			}
			c.histograms[name] = hist
		}
		c.mu.Unlock()
	}
	hist.Record(ctx, value, metric.WithAttributes(attrs...))
}
