package reload

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uber/statsrelay/pkg/backends"
	"github.com/uber/statsrelay/pkg/config"
	"github.com/uber/statsrelay/pkg/discovery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, path string, cfg config.Config) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileAddsAndRemovesBackends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, config.Config{
		Statsd: config.StatsdConfig{
			Bind: "127.0.0.1:0",
			Backends: map[string]config.BackendConfig{
				"b1": {ShardMap: []string{"127.0.0.1:9001"}},
			},
		},
	})

	registry := backends.New(testLogger())
	cache := discovery.NewCache()
	loop := New(path, registry, cache, testLogger())

	if err := loop.reconcile(); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Get("b1"); !ok {
		t.Fatal("expected b1 to be registered")
	}

	writeConfig(t, path, config.Config{
		Statsd: config.StatsdConfig{
			Bind:     "127.0.0.1:0",
			Backends: map[string]config.BackendConfig{},
		},
	})
	if err := loop.reconcile(); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Get("b1"); ok {
		t.Fatal("expected b1 to be removed after reconfiguration")
	}
}

func TestReconcileResolvesShardMapSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, config.Config{
		Statsd: config.StatsdConfig{
			Bind: "127.0.0.1:0",
			Backends: map[string]config.BackendConfig{
				"b1": {ShardMapSource: "hosts"},
			},
		},
		Discovery: &config.Discovery{
			Sources: map[string]config.DiscoverySource{
				"hosts": {Type: "static_file", Path: filepath.Join(dir, "hosts.json"), Interval: 60},
			},
		},
	})

	registry := backends.New(testLogger())
	cache := discovery.NewCache()
	loop := New(path, registry, cache, testLogger())

	// No cached data yet: the backend should be skipped, not errored.
	if err := loop.reconcile(); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Get("b1"); ok {
		t.Fatal("expected b1 to be skipped without cached discovery data")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hostsPath := filepath.Join(dir, "hosts.json")
	data, _ := json.Marshal(struct {
		Hosts []string `json:"hosts"`
	}{Hosts: []string{"127.0.0.1:9001"}})
	if err := os.WriteFile(hostsPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sources := map[string]config.DiscoverySource{
		"hosts": {Type: "static_file", Path: hostsPath, Interval: 1},
	}
	events := discovery.Run(ctx, sources, cache, testLogger())
	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for discovery to populate cache")
	}

	if err := loop.reconcile(); err != nil {
		t.Fatal(err)
	}
	b, ok := registry.Get("b1")
	if !ok {
		t.Fatal("expected b1 to be registered once discovery data is cached")
	}
	if got := b.RingEndpoints(); len(got) != 1 || got[0] != "127.0.0.1:9001" {
		t.Errorf("ring endpoints = %v", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, config.Config{
		Statsd: config.StatsdConfig{Bind: "127.0.0.1:0", Backends: map[string]config.BackendConfig{}},
	})

	registry := backends.New(testLogger())
	cache := discovery.NewCache()
	loop := New(path, registry, cache, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	hup := make(chan struct{})
	updates := make(chan discovery.Event)
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, hup, updates) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
