// Backend is a simple test HTTP server used for proxy testing.
// It provides /echo and /health endpoints, and the health endpoint can be
// toggled at runtime to exercise failover.
//
// Usage:
//
//	go run ./scripts/backend -port 9001
//
// POST /toggle-health flips the /health response between 200 and 503.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
)

func main() {
	port := flag.Int("port", 9001, "port to listen on")
	flag.Parse()

	var unhealthy atomic.Bool

	mux := http.NewServeMux()

	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// log request for visibility when running multiple backends
		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		resp := map[string]any{
			"port":   *port,
			"method": r.Method,
			"path":   r.URL.Path,
			"body":   string(body),
		}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	mux.HandleFunc("/toggle-health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := !unhealthy.Load()
		unhealthy.Store(now)
		log.Printf("health toggled: unhealthy=%v", now)
		fmt.Fprintf(w, "unhealthy=%v\n", now)
	})

	// health endpoint used by the proxy's health monitor
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting backend on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
