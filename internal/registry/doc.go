// Package registry owns the backend pool: an ordered, fixed-length sequence
// of backends with per-backend health state, consecutive probe counters, and
// in-flight request tracking, plus the rotation cursor used by round-robin
// selection. All mutation of backend state goes through registry operations;
// no other component holds a private copy of health state.
package registry
