// Package metrics aggregates operational metrics for the proxy.
//
// The forwarding engine reports one RequestOutcome per handled request and
// the health monitor reports one ProbeEvent per probe. Aggregation tracks:
//   - Total request and error counts
//   - Response counts per status class (2xx through 5xx)
//   - Outcome counts per terminal kind (success, retried, exhausted)
//   - Request latency percentiles (P50, P95, P99) from a bounded sample ring
//   - Per-backend request, error, and probe counters plus health status
//
// Observe operations are best-effort by design: they never block request
// handling and never fail. When the latency ring is full, new samples
// displace the oldest and the displaced count is reported in the snapshot.
// Percentiles are computed at snapshot time from the retained samples,
// trading snapshot cost for observe-time simplicity.
//
// Example usage:
//
//	collector := metrics.NewCollector(1024, logger)
//	collector.ObserveRequest(metrics.RequestOutcome{
//		Backend:    "http://localhost:8081",
//		Kind:       metrics.OutcomeSuccess,
//		StatusCode: 200,
//		Latency:    150 * time.Millisecond,
//		Attempts:   1,
//	})
//	snapshot := collector.Snapshot("round-robin")
package metrics
