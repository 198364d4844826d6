package catalog

import (
	"context"
	"net"
	"testing"
	"time"

	"tunlink/internal/core/types"
)

func TestProbe_MeasuresReachableServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cache := New(&fakeLister{servers: []types.ServerDescriptor{
		{ID: 1, Name: "local", Endpoint: listener.Addr().String(), LatencyMs: 999},
	}})
	cache.Load(context.Background())

	results := cache.Probe(context.Background(), ProbeConfig{Workers: 2, Timeout: 2 * time.Second})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("probe error = %v", results[0].Err)
	}
	if results[0].LatencyMs < 0 {
		t.Errorf("latency = %f, want >= 0", results[0].LatencyMs)
	}

	// The catalog-reported estimate is replaced by the measurement.
	if cache.Servers()[0].LatencyMs == 999 {
		t.Error("cached latency not refreshed by probe")
	}
}

func TestProbe_ReportsUnreachableServer(t *testing.T) {
	cache := New(&fakeLister{servers: []types.ServerDescriptor{
		{ID: 1, Name: "nowhere", Endpoint: "127.0.0.1:1"},
		{ID: 2, Name: "no-endpoint"},
	}})
	cache.Load(context.Background())

	results := cache.Probe(context.Background(), ProbeConfig{Workers: 2, Timeout: 500 * time.Millisecond})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, result := range results {
		if result.Err == nil {
			t.Errorf("probe of %s succeeded, want error", result.Server.Name)
		}
	}
}
