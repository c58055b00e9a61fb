package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Handler serves the metrics snapshot. Prometheus exposition text is the
// default; JSON is returned when the client asks for application/json.
func (c *Collector) Handler(strategy string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.Snapshot(strategy)

		if strings.Contains(r.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(snap); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		writeExposition(w, snap)
	}
}

func writeExposition(w http.ResponseWriter, snap Snapshot) {
	fmt.Fprintf(w, "proxy_requests_total %d\n", snap.TotalRequests)
	fmt.Fprintf(w, "proxy_errors_total %d\n", snap.TotalErrors)
	fmt.Fprintf(w, "proxy_uptime_seconds %.3f\n", snap.Uptime.Seconds())
	fmt.Fprintf(w, "proxy_latency_samples %d\n", snap.SampleCount)
	fmt.Fprintf(w, "proxy_latency_samples_dropped_total %d\n", snap.SamplesDropped)

	for _, class := range sortedKeys(snap.StatusClasses) {
		fmt.Fprintf(w, "proxy_responses_total{class=%q} %d\n", class, snap.StatusClasses[class])
	}

	outcomeKeys := make([]string, 0, len(snap.Outcomes))
	for kind := range snap.Outcomes {
		outcomeKeys = append(outcomeKeys, string(kind))
	}
	sort.Strings(outcomeKeys)
	for _, kind := range outcomeKeys {
		fmt.Fprintf(w, "proxy_outcomes_total{kind=%q} %d\n", kind, snap.Outcomes[OutcomeKind(kind)])
	}

	fmt.Fprintf(w, "proxy_request_latency_seconds{quantile=\"0.5\"} %.6f\n", snap.P50Latency.Seconds())
	fmt.Fprintf(w, "proxy_request_latency_seconds{quantile=\"0.95\"} %.6f\n", snap.P95Latency.Seconds())
	fmt.Fprintf(w, "proxy_request_latency_seconds{quantile=\"0.99\"} %.6f\n", snap.P99Latency.Seconds())

	backendKeys := make([]string, 0, len(snap.Backends))
	for backend := range snap.Backends {
		backendKeys = append(backendKeys, backend)
	}
	sort.Strings(backendKeys)
	for _, backend := range backendKeys {
		bm := snap.Backends[backend]
		up := 0
		if bm.Healthy {
			up = 1
		}
		fmt.Fprintf(w, "proxy_backend_up{backend=%q} %d\n", backend, up)
		fmt.Fprintf(w, "proxy_backend_requests_total{backend=%q} %d\n", backend, bm.Requests)
		fmt.Fprintf(w, "proxy_backend_errors_total{backend=%q} %d\n", backend, bm.Errors)
		fmt.Fprintf(w, "proxy_backend_probes_total{backend=%q} %d\n", backend, bm.Probes)
		fmt.Fprintf(w, "proxy_backend_probe_failures_total{backend=%q} %d\n", backend, bm.ProbeFailures)
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
