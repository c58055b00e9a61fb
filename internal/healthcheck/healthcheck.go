package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
)

// Monitor probes every backend in the registry on a fixed interval and feeds
// the results into the registry's health state machine. One goroutine runs
// per backend so a slow probe against one backend never delays the others.
type Monitor struct {
	registry  *registry.Registry
	collector *metrics.Collector
	client    *http.Client
	interval  time.Duration
	timeout   time.Duration
	path      string
	logger    *slog.Logger
}

// NewMonitor creates a health monitor. The timeout applies per probe and is
// expected to be shorter than the interval (enforced by config validation).
func NewMonitor(
	reg *registry.Registry,
	collector *metrics.Collector,
	interval time.Duration,
	timeout time.Duration,
	path string,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		registry:  reg,
		collector: collector,
		client: &http.Client{
			Timeout: timeout,
		},
		interval: interval,
		timeout:  timeout,
		path:     path,
		logger:   logger,
	}
}

// Start launches one probe loop per backend. The loops run until ctx is
// cancelled.
func (m *Monitor) Start(ctx context.Context) {
	for _, b := range m.registry.Backends() {
		go m.run(ctx, b)
	}
}

func (m *Monitor) run(ctx context.Context, b *registry.Backend) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health probe loop stopped",
				slog.String("backend", b.URL().String()))
			return

		case <-ticker.C:
			m.probe(ctx, b)
		}
	}
}

// probe issues one GET against the backend's health path and applies the
// result. A failed probe never stops the loop; the next tick fires regardless.
func (m *Monitor) probe(ctx context.Context, b *registry.Backend) {
	probeURL := b.URL().ResolveReference(&url.URL{Path: m.path})

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		return
	}

	start := time.Now()
	res, err := m.client.Do(req)
	result := registry.ProbeResult{
		Latency: time.Since(start),
	}

	if err == nil {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		result.StatusCode = res.StatusCode
		result.Success = res.StatusCode >= 200 && res.StatusCode < 300
	}

	state, changed := m.registry.MarkResult(b, result)

	if changed {
		if state == registry.Healthy {
			m.logger.Info("Backend is back up",
				slog.String("backend", b.URL().String()))
		} else {
			m.logger.Warn("Backend is down",
				slog.String("backend", b.URL().String()),
				slog.Int("status", result.StatusCode))
		}
	}

	if m.collector != nil {
		m.collector.ObserveProbe(metrics.ProbeEvent{
			Backend:    b.URL().String(),
			Success:    result.Success,
			Healthy:    state == registry.Healthy,
			StatusCode: result.StatusCode,
			Latency:    result.Latency,
		})
	}
}
