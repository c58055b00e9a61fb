package registry

import (
	"errors"
	"net/url"
	"sync"
	"time"
)

// ErrNoHealthyBackend is returned when every backend in the pool is
// currently marked unhealthy.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// ErrEmptyPool is returned when a registry is constructed without backends.
var ErrEmptyPool = errors.New("backend pool is empty")

// ProbeResult is the outcome of a single health probe, consumed immediately
// by MarkResult.
type ProbeResult struct {
	Success    bool
	Latency    time.Duration
	StatusCode int
}

// Registry owns the ordered backend pool and the round-robin rotation cursor.
// The pool's length and order are fixed at construction; only the per-backend
// health fields and the cursor mutate afterwards.
type Registry struct {
	backends []*Backend

	cursorMu sync.Mutex
	cursor   int

	healthyAfter   int
	unhealthyAfter int
}

// New builds a registry from the given backend URLs. healthyAfter and
// unhealthyAfter are the consecutive-probe thresholds for state transitions;
// values below 1 are raised to 1.
func New(urls []*url.URL, healthyAfter, unhealthyAfter int) (*Registry, error) {
	if len(urls) == 0 {
		return nil, ErrEmptyPool
	}

	if healthyAfter < 1 {
		healthyAfter = 1
	}
	if unhealthyAfter < 1 {
		unhealthyAfter = 1
	}

	backends := make([]*Backend, len(urls))
	for i, u := range urls {
		backends[i] = newBackend(u, i)
	}

	return &Registry{
		backends:       backends,
		healthyAfter:   healthyAfter,
		unhealthyAfter: unhealthyAfter,
	}, nil
}

// Len returns the pool size.
func (r *Registry) Len() int {
	return len(r.backends)
}

// Backends returns the full pool in order, healthy or not.
func (r *Registry) Backends() []*Backend {
	return r.backends
}

// HealthySet returns the backends currently marked healthy, in pool order.
func (r *Registry) HealthySet() []*Backend {
	healthy := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}
	return healthy
}

// MarkResult feeds one probe outcome into a backend's health state machine.
// It returns the state after the update and whether the probe caused a
// transition.
func (r *Registry) MarkResult(b *Backend, res ProbeResult) (State, bool) {
	return b.applyProbe(res.Success, time.Now(), r.healthyAfter, r.unhealthyAfter)
}

// Advance returns the backend at the rotation cursor, scanning forward past
// unhealthy entries for at most one full sweep. The cursor moves by exactly
// one position per call whatever the outcome, so a backend that recovers
// re-enters rotation at its original slot and long-run rotation stays fair.
func (r *Registry) Advance() (*Backend, error) {
	r.cursorMu.Lock()
	start := r.cursor
	r.cursor = (r.cursor + 1) % len(r.backends)
	r.cursorMu.Unlock()

	for i := 0; i < len(r.backends); i++ {
		b := r.backends[(start+i)%len(r.backends)]
		if b.IsHealthy() {
			return b, nil
		}
	}

	return nil, ErrNoHealthyBackend
}
