// Package healthcheck runs the background health monitor: one probe loop per
// backend on a fixed interval, classifying any 2xx response within the probe
// timeout as a success. State transitions are debounced by the registry's
// consecutive-probe thresholds, so a single transient failure or recovery
// never flips a backend.
package healthcheck
