package metrics

import (
	"sort"
	"sync"
	"time"
)

// OutcomeKind is the terminal classification of one proxied request.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRetriedSuccess   OutcomeKind = "retried_success"
	OutcomeRetriesExhausted OutcomeKind = "retries_exhausted"
	OutcomeAllExhausted     OutcomeKind = "all_backends_exhausted"
)

// RequestOutcome is the one-shot record emitted for every completed client
// request.
type RequestOutcome struct {
	Backend    string
	Kind       OutcomeKind
	StatusCode int
	Latency    time.Duration
	Attempts   int
}

// ProbeEvent mirrors one health probe: its raw result plus the backend's
// health state after the registry applied it.
type ProbeEvent struct {
	Backend    string
	Success    bool
	Healthy    bool
	StatusCode int
	Latency    time.Duration
}

// Metrics is the process-lifetime aggregate store. Writes are cheap
// append-and-count operations; percentile math is deferred to Snapshot.
type Metrics struct {
	mutex         sync.RWMutex
	totalRequests int64
	totalErrors   int64
	statusClasses map[string]int64
	outcomes      map[OutcomeKind]int64
	backends      map[string]*backendCounters

	// latencies is a bounded ring of request latency samples; once full,
	// new samples overwrite the oldest and overflow counts the displaced ones.
	latencies []time.Duration
	latNext   int
	latFull   bool
	overflow  int64

	startTime time.Time
}

type backendCounters struct {
	requests      int64
	errors        int64
	probes        int64
	probeFailures int64
	healthy       bool
}

// Snapshot is the aggregated read-only view returned by Metrics.Snapshot.
type Snapshot struct {
	TotalRequests  int64                     `json:"total_requests"`
	TotalErrors    int64                     `json:"total_errors"`
	Uptime         time.Duration             `json:"uptime"`
	StatusClasses  map[string]int64          `json:"status_classes"`
	Outcomes       map[OutcomeKind]int64     `json:"outcomes"`
	AvgLatency     time.Duration             `json:"avg_latency"`
	P50Latency     time.Duration             `json:"p50_latency"`
	P95Latency     time.Duration             `json:"p95_latency"`
	P99Latency     time.Duration             `json:"p99_latency"`
	SampleCount    int                       `json:"sample_count"`
	SamplesDropped int64                     `json:"samples_dropped"`
	Backends       map[string]BackendMetrics `json:"backends"`
	Strategy       string                    `json:"strategy"`
}

// BackendMetrics is the per-backend slice of a Snapshot.
type BackendMetrics struct {
	Requests      int64 `json:"requests"`
	Errors        int64 `json:"errors"`
	Probes        int64 `json:"probes"`
	ProbeFailures int64 `json:"probe_failures"`
	Healthy       bool  `json:"healthy"`
}

// NewMetrics creates an empty aggregate store with the given latency sample
// capacity. Capacities below 1 default to 1024.
func NewMetrics(sampleSize int) *Metrics {
	if sampleSize < 1 {
		sampleSize = 1024
	}
	return &Metrics{
		statusClasses: make(map[string]int64),
		outcomes:      make(map[OutcomeKind]int64),
		backends:      make(map[string]*backendCounters),
		latencies:     make([]time.Duration, 0, sampleSize),
		startTime:     time.Now(),
	}
}

// RecordRequest folds one request outcome into the aggregates.
func (m *Metrics) RecordRequest(out RequestOutcome) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.outcomes[out.Kind]++
	m.statusClasses[statusClass(out.StatusCode)]++

	if out.Kind == OutcomeRetriesExhausted || out.Kind == OutcomeAllExhausted {
		m.totalErrors++
	}

	if out.Backend != "" {
		bc := m.backendCounters(out.Backend)
		bc.requests++
		if out.Kind == OutcomeRetriesExhausted {
			bc.errors++
		}
	}

	m.addSample(out.Latency)
}

// RecordProbe folds one health probe into the aggregates.
func (m *Metrics) RecordProbe(ev ProbeEvent) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	bc := m.backendCounters(ev.Backend)
	bc.probes++
	if !ev.Success {
		bc.probeFailures++
	}
	bc.healthy = ev.Healthy
}

func (m *Metrics) backendCounters(backend string) *backendCounters {
	bc, ok := m.backends[backend]
	if !ok {
		bc = &backendCounters{healthy: true}
		m.backends[backend] = bc
	}
	return bc
}

func (m *Metrics) addSample(d time.Duration) {
	if !m.latFull {
		m.latencies = append(m.latencies, d)
		if len(m.latencies) == cap(m.latencies) {
			m.latFull = true
		}
		return
	}

	m.latencies[m.latNext] = d
	m.latNext = (m.latNext + 1) % len(m.latencies)
	m.overflow++
}

// Snapshot returns the current aggregated view without mutating it. Calling
// it repeatedly with no intervening records yields identical values;
// percentiles are computed here from the retained samples, not incrementally.
func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests:  m.totalRequests,
		TotalErrors:    m.totalErrors,
		Uptime:         time.Since(m.startTime),
		StatusClasses:  make(map[string]int64, len(m.statusClasses)),
		Outcomes:       make(map[OutcomeKind]int64, len(m.outcomes)),
		SampleCount:    len(m.latencies),
		SamplesDropped: m.overflow,
		Backends:       make(map[string]BackendMetrics, len(m.backends)),
		Strategy:       strategy,
	}

	for class, n := range m.statusClasses {
		snap.StatusClasses[class] = n
	}
	for kind, n := range m.outcomes {
		snap.Outcomes[kind] = n
	}
	for backend, bc := range m.backends {
		snap.Backends[backend] = BackendMetrics{
			Requests:      bc.requests,
			Errors:        bc.errors,
			Probes:        bc.probes,
			ProbeFailures: bc.probeFailures,
			Healthy:       bc.healthy,
		}
	}

	if len(m.latencies) > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.AvgLatency = average(sorted)
		snap.P50Latency = percentile(sorted, 0.50)
		snap.P95Latency = percentile(sorted, 0.95)
		snap.P99Latency = percentile(sorted, 0.99)
	}

	return snap
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
