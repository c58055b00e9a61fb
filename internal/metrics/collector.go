package metrics

import (
	"log/slog"
)

// Collector is the observer the forwarding and health-check paths report to.
// Observe calls are synchronous so every emitted event lands in the
// aggregates exactly once, but they only touch in-memory counters and never
// block on I/O or fail.
type Collector struct {
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(sampleSize int, logger *slog.Logger) *Collector {
	return &Collector{
		metrics: NewMetrics(sampleSize),
		logger:  logger,
	}
}

// ObserveRequest records one completed request outcome.
func (c *Collector) ObserveRequest(out RequestOutcome) {
	c.metrics.RecordRequest(out)
}

// ObserveProbe records one health probe result.
func (c *Collector) ObserveProbe(ev ProbeEvent) {
	c.metrics.RecordProbe(ev)
}

// Snapshot returns the current aggregated view.
func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
