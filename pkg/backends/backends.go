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

// Package backends implements the shared, lock-protected registry of named
// fan-out Backends described in spec.md §4.5.
package backends

import (
	"log/slog"
	"sync"

	"github.com/uber/statsrelay/pkg/backend"
	"github.com/uber/statsrelay/pkg/pdu"
)

// Registry is a concurrency-safe map from backend name to *backend.Backend.
// provide is a read operation; replace/remove are write operations, guarded
// by a single RWMutex with short critical sections (spec.md §4.5, §5).
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*backend.Backend
	logger   *slog.Logger
}

// New returns an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		backends: make(map[string]*backend.Backend),
		logger:   logger,
	}
}

// Replace constructs a new Backend for name using conf, reusing connections
// from the current entry (if any) as "previous". The new Backend is
// installed atomically under name (spec.md §4.5 "replace").
func (r *Registry) Replace(name string, conf backend.Config) error {
	conf.Name = name

	r.mu.Lock()
	previous := r.backends[name]
	r.mu.Unlock()

	next, err := backend.New(conf, previous, r.logger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.backends[name] = next
	r.mu.Unlock()
	return nil
}

// Remove erases the named entry. The released Backend's ring drop triggers
// shutdown of any clients no longer referenced elsewhere.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	b, ok := r.backends[name]
	delete(r.backends, name)
	r.mu.Unlock()

	if ok {
		b.Shutdown()
	}
}

// Names returns a snapshot of the current backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Provide fans p out to every currently registered backend. It takes only
// the read lock, so it never contends with another concurrent Provide call,
// only with Replace/Remove (spec.md §4.5, §5).
func (r *Registry) Provide(p *pdu.PDU) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.backends {
		b.Provide(p)
	}
}

// Get returns the named backend, for tests and introspection.
func (r *Registry) Get(name string) (*backend.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}
