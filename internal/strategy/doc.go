// Package strategy defines the backend selection interface and implements
// the available policies:
//
//   - Round Robin: one cursor advance per request, skipping unhealthy backends
//   - Least Connections: routes to the healthy backend with fewest in-flight requests
//   - Random: uniform random pick among healthy backends
//
// Selection is isolated from registry storage so policies can be swapped
// without touching registry internals.
package strategy
