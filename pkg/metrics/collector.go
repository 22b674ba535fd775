package metrics

import "time"

// BufferStats is the subset of the durable buffer's state the collector
// needs. Implemented by *store.EventBuffer.
type BufferStats interface {
	Count() (int, error)
}

// BaselineStats is the subset of the FIM baseline store's state the
// collector needs. Implemented by *store.BaselineStore.
type BaselineStats interface {
	Count() (int, error)
}

// Collector periodically refreshes the buffer-depth and baseline-size
// gauges from the stores, since both are polled rather than pushed on
// every mutation.
type Collector struct {
	buffer   BufferStats
	baseline BaselineStats
	stopCh   chan struct{}
}

// NewCollector creates a collector over the given stores. baseline may be
// nil when FIM is disabled.
func NewCollector(buffer BufferStats, baseline BaselineStats) *Collector {
	return &Collector{
		buffer:   buffer,
		baseline: baseline,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection on a 15s interval, collecting
// immediately on start.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.buffer != nil {
		if n, err := c.buffer.Count(); err == nil {
			EventsBuffered.Set(float64(n))
		}
	}
	if c.baseline != nil {
		if n, err := c.baseline.Count(); err == nil {
			BaselineEntriesTotal.Set(float64(n))
		}
	}
}
