package registry

import (
	"net/url"
	"sync"
	"time"
)

// State is the health state of a single backend.
type State int

const (
	Healthy State = iota
	Unhealthy
)

func (s State) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// Backend represents one upstream server in the pool. All mutable fields are
// guarded by the backend's own mutex, so probes for different backends never
// contend with each other.
type Backend struct {
	url   *url.URL
	index int

	mutex       sync.Mutex
	state       State
	consecFails int
	consecOKs   int
	lastProbe   time.Time
	inflight    int
}

func newBackend(u *url.URL, index int) *Backend {
	// Backends start healthy; the first probe cycle demotes them if they
	// are actually down.
	return &Backend{
		url:   u,
		index: index,
		state: Healthy,
	}
}

// URL returns the backend's origin URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Index returns the backend's fixed position in the pool.
func (b *Backend) Index() int {
	return b.index
}

// IsHealthy returns true if the backend is currently marked healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state == Healthy
}

// State returns the backend's current health state.
func (b *Backend) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// SetHealthy forces the health state and clears both consecutive counters.
// Returns true if the state changed.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	next := Unhealthy
	if healthy {
		next = Healthy
	}

	b.consecFails = 0
	b.consecOKs = 0

	if b.state == next {
		return false
	}

	b.state = next
	return true
}

// LastProbe returns the time of the most recent health probe.
func (b *Backend) LastProbe() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastProbe
}

// IncrementInflight increments the in-flight request count.
func (b *Backend) IncrementInflight() {
	b.mutex.Lock()
	b.inflight++
	b.mutex.Unlock()
}

// DecrementInflight decrements the in-flight request count.
func (b *Backend) DecrementInflight() {
	b.mutex.Lock()
	if b.inflight > 0 {
		b.inflight--
	}
	b.mutex.Unlock()
}

// Inflight returns the current number of in-flight requests.
func (b *Backend) Inflight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.inflight
}

// applyProbe feeds one probe outcome into the consecutive counters and flips
// the health state when a threshold is crossed. A success resets the failure
// counter and vice versa, so only uninterrupted streaks count toward a
// transition. The counter that reached its threshold is cleared whether or
// not the state actually changed.
func (b *Backend) applyProbe(success bool, at time.Time, healthyAfter, unhealthyAfter int) (State, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastProbe = at

	if success {
		b.consecFails = 0
		b.consecOKs++
		if b.consecOKs >= healthyAfter {
			b.consecOKs = 0
			if b.state == Unhealthy {
				b.state = Healthy
				return b.state, true
			}
		}
		return b.state, false
	}

	b.consecOKs = 0
	b.consecFails++
	if b.consecFails >= unhealthyAfter {
		b.consecFails = 0
		if b.state == Healthy {
			b.state = Unhealthy
			return b.state, true
		}
	}
	return b.state, false
}
