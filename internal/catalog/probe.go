package catalog

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tunlink/internal/core/types"
)

// ProbeResult holds the outcome for a single server probe.
type ProbeResult struct {
	Server    types.ServerDescriptor
	LatencyMs float64
	Err       error
}

// ProbeConfig holds configuration for the latency prober.
type ProbeConfig struct {
	Workers int64
	Timeout time.Duration
}

// DefaultProbeConfig returns default probe configuration
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Workers: 10,
		Timeout: 5 * time.Second,
	}
}

// Probe measures TCP handshake latency to every cached server with a
// semaphore-bounded worker pool and refreshes the cached LatencyMs
// values. Catalog-reported latency is a server-side estimate; the probe
// replaces it with what this client actually observes.
func (c *Cache) Probe(ctx context.Context, cfg ProbeConfig) []ProbeResult {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultProbeConfig().Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeConfig().Timeout
	}

	servers := c.Servers()
	results := make([]ProbeResult, len(servers))

	sem := semaphore.NewWeighted(cfg.Workers)
	var wg sync.WaitGroup

	for i, server := range servers {
		wg.Add(1)
		go func(idx int, srv types.ServerDescriptor) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = ProbeResult{Server: srv, Err: err}
				return
			}
			defer sem.Release(1)

			latency, err := probeOne(ctx, srv, cfg.Timeout)
			results[idx] = ProbeResult{Server: srv, LatencyMs: latency, Err: err}
			if err == nil {
				c.setLatency(srv.ID, latency)
			}
		}(i, server)
	}

	wg.Wait()
	return results
}

// probeOne measures a single TCP handshake.
func probeOne(ctx context.Context, server types.ServerDescriptor, timeout time.Duration) (float64, error) {
	if server.Endpoint == "" {
		return 0, fmt.Errorf("server %d has no endpoint", server.ID)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(probeCtx, "tcp", server.Endpoint)
	if err != nil {
		return 0, fmt.Errorf("tcp handshake failed: %w", err)
	}
	elapsed := time.Since(start)
	conn.Close()

	return float64(elapsed.Microseconds()) / 1000.0, nil
}
