// Copyright 2013 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uber/statsrelay/pkg/config"
)

var fetchErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "statsrelay_discovery_fetch_errors_total",
		Help: "The number of discovery source fetch/parse failures.",
	},
	[]string{"source"},
)

// Event is one (source name, Update) pair emitted by the discovery stream,
// matching spec.md §4.6 "Stream multiplexing".
type Event struct {
	Source string
	Update Update
}

// Cache is the reflector's concurrent map from source name to the last
// observed Update (spec.md §3 "DiscoveryCache"). Writers are the poll
// goroutines (via the reflector); readers are the reload loop.
type Cache struct {
	mu sync.RWMutex
	m  map[string]Update
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]Update)}
}

// Get returns the last Update stored for name, if any.
func (c *Cache) Get(name string) (Update, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.m[name]
	return u, ok
}

func (c *Cache) store(name string, u Update) {
	c.mu.Lock()
	c.m[name] = u
	c.mu.Unlock()
}

// Run starts one polling goroutine per configured source and returns a
// channel of Events, merged from all sources (spec.md §4.6 "Stream
// multiplexing"). Every Event is stored into cache before being forwarded,
// implementing the reflector pattern from spec.md §4.6 and §9 GLOSSARY.
//
// Run returns immediately; polling stops when ctx is cancelled, at which
// point the returned channel is closed.
func Run(ctx context.Context, sources map[string]config.DiscoverySource, cache *Cache, logger *slog.Logger) <-chan Event {
	out := make(chan Event)
	var wg sync.WaitGroup

	for name, cfg := range sources {
		src, err := newSource(cfg)
		if err != nil {
			logger.Error("invalid discovery source, skipping", "source", name, "error", err)
			continue
		}
		wg.Add(1)
		go func(name string, cfg config.DiscoverySource, src source) {
			defer wg.Done()
			pollOne(ctx, name, cfg, src, out, logger)
		}(name, cfg, src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	// The reflector stage: store every event into cache before it reaches
	// the caller. A second channel hop keeps Run's own goroutines oblivious
	// to the cache.
	reflected := make(chan Event)
	go func() {
		defer close(reflected)
		for ev := range out {
			cache.store(ev.Source, ev.Update)
			reflected <- ev
		}
	}()

	return reflected
}

// pollOne owns one source's independent interval ticker, starting interval
// seconds after boot (spec.md §4.6 "Polling").
func pollOne(ctx context.Context, name string, cfg config.DiscoverySource, src source, out chan<- Event, logger *slog.Logger) {
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Update
	haveLast := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update, err := src.fetch(ctx)
			if err != nil {
				fetchErrorsTotal.WithLabelValues(name).Inc()
				logger.Warn("discovery fetch failed, skipping this tick", "source", name, "error", err)
				continue
			}
			update = applyTransforms(update, src.transforms())
			if haveLast && update.Equal(last) {
				continue
			}
			last = update
			haveLast = true
			select {
			case out <- Event{Source: name, Update: update}:
			case <-ctx.Done():
				return
			}
		}
	}
}
