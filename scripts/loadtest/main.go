// Loadtest is a concurrent HTTP load testing tool that measures throughput,
// latency percentiles, and backend distribution for proxy testing.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/echo -concurrency 10 -requests 1000
//
// Backend distribution is derived from the X-Backend-Server response header
// set by the proxy.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type backendStats struct {
	count     int32
	success   int32
	failure   int32
	latencies []time.Duration
}

func main() {
	var (
		target      = flag.String("url", "http://localhost:8080/echo", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		method      = flag.String("method", "GET", "HTTP method")
		body        = flag.String("body", "", "Request body")
		timeoutSec  = flag.Int("timeout", 10, "Per-request timeout in seconds")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, success, failure int32

	stats := make(map[string]*backendStats)
	var statsMu sync.Mutex

	statusCodes := make(map[int]int32)
	var statusMu sync.Mutex

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				atomic.AddInt32(&total, 1)
				start := time.Now()

				req, err := http.NewRequest(*method, *target, bytes.NewBufferString(*body))
				if err != nil {
					atomic.AddInt32(&failure, 1)
					continue
				}

				resp, err := client.Do(req)
				dur := time.Since(start)

				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				statusMu.Lock()
				statusCodes[resp.StatusCode]++
				statusMu.Unlock()

				ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
				if ok {
					atomic.AddInt32(&success, 1)
				} else {
					atomic.AddInt32(&failure, 1)
				}

				backend := resp.Header.Get("X-Backend-Server")
				if backend == "" {
					backend = "(unknown)"
				}

				statsMu.Lock()
				bs, found := stats[backend]
				if !found {
					bs = &backendStats{}
					stats[backend] = bs
				}
				bs.count++
				if ok {
					bs.success++
				} else {
					bs.failure++
				}
				bs.latencies = append(bs.latencies, dur)
				statsMu.Unlock()

				if *verbose {
					fmt.Printf("[%d] idx=%d backend=%s status=%d dur=%v\n", workerID, idx, backend, resp.StatusCode, dur)
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)
	throughput := float64(total) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *target)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Success: %d  Failure: %d\n", total, success, failure)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var scKeys []int
	for k := range statusCodes {
		scKeys = append(scKeys, k)
	}
	sort.Ints(scKeys)
	for _, k := range scKeys {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	fmt.Println("\nBackend distribution & stats:")
	var backendKeys []string
	for k := range stats {
		backendKeys = append(backendKeys, k)
	}
	sort.Strings(backendKeys)
	for _, k := range backendKeys {
		bs := stats[k]
		fmt.Printf("  %s -> total=%d success=%d failure=%d\n", k, bs.count, bs.success, bs.failure)
		if len(bs.latencies) > 0 {
			sorted := make([]time.Duration, len(bs.latencies))
			copy(sorted, bs.latencies)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			pick := func(p float64) time.Duration {
				idx := int(float64(len(sorted)-1) * p)
				return sorted[idx]
			}
			var sum time.Duration
			for _, d := range sorted {
				sum += d
			}
			avg := sum / time.Duration(len(sorted))
			fmt.Printf("    latencies: samples=%d min=%v avg=%v max=%v p50=%v p95=%v p99=%v\n",
				len(sorted), sorted[0], avg, sorted[len(sorted)-1], pick(0.50), pick(0.95), pick(0.99))
		}
	}

	if failure > 0 {
		os.Exit(2)
	}
}
