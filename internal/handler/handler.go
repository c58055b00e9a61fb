package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
)

// Hop-by-hop headers are stripped in both directions, per RFC 7230 section 6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder relays client requests to a selected backend, retrying against
// the next selection on connection failures and timeouts. Every handled
// request emits exactly one outcome to the collector; the only exception is
// a request the client itself abandoned.
type Forwarder struct {
	logger         *slog.Logger
	registry       *registry.Registry
	strategy       strategy.Strategy
	collector      *metrics.Collector
	client         *http.Client
	requestTimeout time.Duration
	retryAttempts  int
	excludeFailed  bool
}

// backendResponse is a fully buffered backend reply, read before the
// per-attempt deadline is released.
type backendResponse struct {
	status int
	header http.Header
	body   []byte
}

// NewForwarder creates the forwarding engine. retryAttempts is the number of
// additional attempts after the first failed forward; excludeFailed makes a
// retry skip the backend that just failed when another healthy one exists.
func NewForwarder(
	logger *slog.Logger,
	reg *registry.Registry,
	strat strategy.Strategy,
	collector *metrics.Collector,
	requestTimeout time.Duration,
	retryAttempts int,
	excludeFailed bool,
) *Forwarder {
	return &Forwarder{
		logger:    logger,
		registry:  reg,
		strategy:  strat,
		collector: collector,
		client: &http.Client{
			// Redirects are relayed to the client as-is, never followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		requestTimeout: requestTimeout,
		retryAttempts:  retryAttempts,
		excludeFailed:  excludeFailed,
	}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clientIP := extractClientIP(r)

	f.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	// The body is buffered once so a retry can replay it.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.logger.Warn("Failed to read request body",
			slog.String("client", clientIP),
			slog.Any("err", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var lastFailed *registry.Backend
	timedOut := false

	for attempt := 0; attempt <= f.retryAttempts; attempt++ {
		backend, err := f.pick(lastFailed)
		if err != nil {
			if attempt == 0 {
				// Nothing to forward to: answer 503 without a single
				// network call.
				f.logger.Warn("No healthy backends available",
					slog.String("client", clientIP))
				f.emit(metrics.RequestOutcome{
					Kind:       metrics.OutcomeAllExhausted,
					StatusCode: http.StatusServiceUnavailable,
					Latency:    time.Since(start),
				})
				http.Error(w, "no healthy backend available", http.StatusServiceUnavailable)
				return
			}

			f.finishExhausted(w, lastFailed, timedOut, start, attempt)
			return
		}

		res, err := f.forward(r, backend, body)
		if err != nil {
			if r.Context().Err() != nil {
				// The client went away; there is no response to account for.
				f.logger.Info("Request cancelled by client",
					slog.String("client", clientIP))
				return
			}

			timedOut = isTimeout(err)
			lastFailed = backend
			f.logger.Warn("Forward attempt failed",
				slog.String("backend", backend.URL().String()),
				slog.Int("attempt", attempt+1),
				slog.Bool("timeout", timedOut),
				slog.Any("err", err))
			continue
		}

		f.relay(w, backend, res)

		kind := metrics.OutcomeSuccess
		if attempt > 0 {
			kind = metrics.OutcomeRetriedSuccess
		}
		f.emit(metrics.RequestOutcome{
			Backend:    backend.URL().String(),
			Kind:       kind,
			StatusCode: res.status,
			Latency:    time.Since(start),
			Attempts:   attempt + 1,
		})
		return
	}

	f.finishExhausted(w, lastFailed, timedOut, start, f.retryAttempts+1)
}

// pick asks the strategy for the next backend. With exclusion enabled, a
// selection that lands on the backend that just failed is replaced by the
// next healthy backend in pool order; when the failed backend is the only
// healthy one left, it is still returned.
func (f *Forwarder) pick(lastFailed *registry.Backend) (*registry.Backend, error) {
	backend, err := f.strategy.Next(f.registry)
	if err != nil {
		return nil, err
	}

	if !f.excludeFailed || lastFailed == nil || backend != lastFailed {
		return backend, nil
	}

	healthy := f.registry.HealthySet()
	for _, b := range healthy {
		if b.Index() > lastFailed.Index() {
			return b, nil
		}
	}
	for _, b := range healthy {
		if b != lastFailed {
			return b, nil
		}
	}

	return backend, nil
}

// forward sends the buffered request to one backend and reads the full
// response before the attempt deadline is released.
func (f *Forwarder) forward(r *http.Request, backend *registry.Backend, body []byte) (*backendResponse, error) {
	ctx, cancel := context.WithTimeout(r.Context(), f.requestTimeout)
	defer cancel()

	target := backend.URL().ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.Clone()
	removeHopHeaders(req.Header)
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	appendForwardedFor(req.Header, host)
	req.Host = r.Host

	backend.IncrementInflight()
	defer backend.DecrementInflight()

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &backendResponse{
		status: res.StatusCode,
		header: res.Header,
		body:   respBody,
	}, nil
}

// relay copies the backend's response verbatim to the client.
func (f *Forwarder) relay(w http.ResponseWriter, backend *registry.Backend, res *backendResponse) {
	header := res.header.Clone()
	removeHopHeaders(header)
	// The body is fully buffered; let the server recompute the length.
	header.Del("Content-Length")

	for key, values := range header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("X-Backend-Server", backend.URL().String())

	w.WriteHeader(res.status)
	w.Write(res.body)
}

// finishExhausted maps the last failure cause to the client-facing status
// once the retry budget is spent: 504 for timeouts, 502 for connection-level
// failures.
func (f *Forwarder) finishExhausted(w http.ResponseWriter, lastFailed *registry.Backend, timedOut bool, start time.Time, attempts int) {
	status := http.StatusBadGateway
	message := "bad gateway: cannot reach backend"
	if timedOut {
		status = http.StatusGatewayTimeout
		message = "gateway timeout: backend did not respond in time"
	}

	backendURL := ""
	if lastFailed != nil {
		backendURL = lastFailed.URL().String()
	}

	f.logger.Error("Retry budget exhausted",
		slog.Int("attempts", attempts),
		slog.Bool("timeout", timedOut))

	f.emit(metrics.RequestOutcome{
		Backend:    backendURL,
		Kind:       metrics.OutcomeRetriesExhausted,
		StatusCode: status,
		Latency:    time.Since(start),
		Attempts:   attempts,
	})
	http.Error(w, message, status)
}

func (f *Forwarder) emit(out metrics.RequestOutcome) {
	if f.collector == nil {
		return
	}
	f.collector.ObserveRequest(out)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func appendForwardedFor(h http.Header, clientIP string) {
	if clientIP == "" {
		return
	}
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		h.Set("X-Forwarded-For", prior+", "+clientIP)
		return
	}
	h.Set("X-Forwarded-For", clientIP)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
