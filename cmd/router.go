package main

import (
	"net/http"

	"github.com/angeloszaimis/reverse-proxy/internal/handler"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
)

// setupRouter wires the reserved /metrics path ahead of the catch-all proxy
// route; everything else is forwarded to a backend.
func setupRouter(forwarder *handler.Forwarder, collector *metrics.Collector, strategy string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", forwarder.ServeHTTP)
	mux.HandleFunc("/metrics", collector.Handler(strategy))

	return mux
}
