// Package handler implements the request-forwarding engine: backend
// selection, forwarding with a per-attempt deadline, failover to the next
// selection on connection failures and timeouts, and the mapping of
// exhausted retries to 502/503/504 responses.
package handler
