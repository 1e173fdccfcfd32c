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

// Package reload implements the configuration reload loop from spec.md
// §4.8: load+validate, resolve shard maps against the discovery cache,
// reconcile the backend registry, then wait for either a SIGHUP or a
// discovery update before looping again.
package reload

import (
	"context"
	"log/slog"

	"github.com/uber/statsrelay/pkg/backend"
	"github.com/uber/statsrelay/pkg/backends"
	"github.com/uber/statsrelay/pkg/config"
	"github.com/uber/statsrelay/pkg/discovery"
)

// Loop owns one reload iteration's worth of state: the config path, the
// shared registry, and the discovery cache it resolves shard_map_source
// against.
type Loop struct {
	configPath string
	registry   *backends.Registry
	cache      *discovery.Cache
	logger     *slog.Logger
}

// New returns a Loop wired to registry and cache. cache is read, never
// written, by Loop; it is populated independently by discovery.Run.
func New(configPath string, registry *backends.Registry, cache *discovery.Cache, logger *slog.Logger) *Loop {
	return &Loop{configPath: configPath, registry: registry, cache: cache, logger: logger}
}

// Run executes the reload loop until ctx is cancelled. hup and discoveryUpdates
// are the two events that trigger the next iteration after the first
// (spec.md §4.8 "await either a SIGHUP or a discovery update").
func (l *Loop) Run(ctx context.Context, hup <-chan struct{}, discoveryUpdates <-chan discovery.Event) error {
	if err := l.reconcile(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			l.logger.Info("reload triggered by signal")
			if err := l.reconcile(); err != nil {
				l.logger.Error("reload failed, keeping previous configuration", "error", err)
			}
		case ev, ok := <-discoveryUpdates:
			if !ok {
				discoveryUpdates = nil
				continue
			}
			l.logger.Info("reload triggered by discovery update", "source", ev.Source)
			if err := l.reconcile(); err != nil {
				l.logger.Error("reload failed, keeping previous configuration", "error", err)
			}
		}
	}
}

// reconcile loads the config file, resolves every backend's effective
// shard map, and brings the registry in line with it (spec.md §4.8 steps
// 1-3).
func (l *Loop) reconcile() error {
	cfg, err := config.Load(l.configPath)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(cfg.Statsd.Backends))
	for name, bc := range cfg.Statsd.Backends {
		wanted[name] = struct{}{}

		shardMap := bc.ShardMap
		if bc.ShardMapSource != "" {
			update, ok := l.cache.Get(bc.ShardMapSource)
			if !ok {
				l.logger.Warn("shard_map_source has no cached discovery data yet, skipping backend",
					"backend", name, "source", bc.ShardMapSource)
				continue
			}
			shardMap = update.Hosts
		}

		conf := backend.Config{
			ShardMap:       shardMap,
			Prefix:         []byte(bc.Prefix),
			Suffix:         []byte(bc.Suffix),
			InputFilter:    bc.InputFilter,
			InputBlocklist: bc.InputBlocklist,
		}
		if err := l.registry.Replace(name, conf); err != nil {
			l.logger.Error("failed to build backend, leaving previous instance in place",
				"backend", name, "error", err)
			continue
		}
	}

	for _, existing := range l.registry.Names() {
		if _, ok := wanted[existing]; !ok {
			l.logger.Info("removing backend no longer present in configuration", "backend", existing)
			l.registry.Remove(existing)
		}
	}

	return nil
}
