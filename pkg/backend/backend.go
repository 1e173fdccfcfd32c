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

// Package backend implements a named fan-out target (spec.md §4.4): a
// filter regex set, a prefix/suffix rewriter, and a ring of StatsdClients
// sharing endpoint identity with prior incarnations for connection reuse.
package backend

import (
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uber/statsrelay/internal/regexset"
	"github.com/uber/statsrelay/pkg/pdu"
	"github.com/uber/statsrelay/pkg/shard"
	"github.com/uber/statsrelay/pkg/statsdclient"
)

var (
	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_backend_queue_full_total",
			Help: "The number of PDUs dropped because a downstream client's submission queue was full.",
		},
		[]string{"backend", "endpoint"},
	)
	filteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_backend_filtered_total",
			Help: "The number of PDUs dropped by a backend's input filter/blocklist.",
		},
		[]string{"backend"},
	)
)

// warnEvery controls how often a queue-full warning is logged per backend,
// per spec.md §4.3 ("logs every 1000th failure").
const warnEvery = 1000

// Config is the effective, already-resolved configuration for one Backend:
// the shard map has already been picked from either the static config or a
// discovery snapshot by the caller (spec.md §4.4 step 2).
type Config struct {
	Name           string
	ShardMap       []string
	Prefix         []byte
	Suffix         []byte
	InputFilter    string
	InputBlocklist string
}

// Backend is a named fan-out destination: filter + rewrite + ring of
// clients.
type Backend struct {
	name     string
	conf     Config
	filter   *regexset.Set
	ring     *shard.Ring[*statsdclient.Client]
	warnings atomic.Uint64
	logger   *slog.Logger
}

// New constructs a Backend from conf. previous, if non-nil, is the Backend
// instance this one is replacing; matching endpoints are reused from it so
// existing connections survive a reconfiguration (spec.md §4.4 step 3).
func New(conf Config, previous *Backend, logger *slog.Logger) (*Backend, error) {
	var patterns []string
	// The original relay's RegexSet conflates blocklist and filter into one
	// allow-match set (original_source/src/backends.rs); preserved here for
	// compatibility per spec.md §9 Open Question 1.
	if conf.InputBlocklist != "" {
		patterns = append(patterns, conf.InputBlocklist)
	}
	if conf.InputFilter != "" {
		patterns = append(patterns, conf.InputFilter)
	}
	var filter *regexset.Set
	if len(patterns) > 0 {
		var err error
		filter, err = regexset.New(patterns)
		if err != nil {
			return nil, err
		}
	}

	var previousClients map[string]*statsdclient.Client
	if previous != nil {
		previousClients = make(map[string]*statsdclient.Client, len(previous.ring.Members()))
		for _, c := range previous.ring.Members() {
			if _, ok := previousClients[c.Endpoint()]; !ok {
				previousClients[c.Endpoint()] = c
			}
		}
	}

	ring := shard.New[*statsdclient.Client]()
	usedFromPrevious := make(map[string]bool)
	for _, endpoint := range conf.ShardMap {
		if reused, ok := previousClients[endpoint]; ok {
			ring.Push(reused)
			usedFromPrevious[endpoint] = true
			continue
		}
		ring.Push(statsdclient.New(endpoint, statsdclient.DefaultQueueCapacity, logger))
	}

	b := &Backend{
		name:   conf.Name,
		conf:   conf,
		filter: filter,
		ring:   ring,
		logger: logger,
	}

	// Endpoints that existed in the previous incarnation but are not part of
	// the new shard map are shut down here, while the previous Backend may
	// still be installed in the registry; PDUs it routes to them in that
	// window are lost.
	if previous != nil {
		for endpoint, c := range previousClients {
			if !usedFromPrevious[endpoint] {
				c.Shutdown()
			}
		}
	}

	return b, nil
}

// Name returns the backend's configured name.
func (b *Backend) Name() string {
	return b.name
}

// Shutdown tears down every client ring member. Called when the backend is
// removed from the registry outright.
func (b *Backend) Shutdown() {
	for _, c := range b.ring.Members() {
		c.Shutdown()
	}
}

// Matches reports whether name passes this backend's filter. With no filter
// configured, everything matches (spec.md §4.4 step 1, §8 property 5).
func (b *Backend) Matches(name []byte) bool {
	if b.filter == nil {
		return true
	}
	return b.filter.Match(name)
}

// Provide filters, shards, optionally rewrites, and submits p to this
// backend's selected client (spec.md §4.4 "Submit").
func (b *Backend) Provide(p *pdu.PDU) {
	if !b.Matches(p.Name()) {
		filteredTotal.WithLabelValues(b.name).Inc()
		return
	}
	length := b.ring.Len()
	if length == 0 {
		return
	}
	code := shard.PickCode(p, length)
	client := b.ring.Pick(code)

	out := p
	if len(b.conf.Prefix) > 0 || len(b.conf.Suffix) > 0 {
		out = p.WithPrefixSuffix(b.conf.Prefix, b.conf.Suffix)
	}

	if err := client.TrySubmit(out); err != nil {
		queueFullTotal.WithLabelValues(b.name, client.Endpoint()).Inc()
		count := b.warnings.Add(1)
		if count%warnEvery == 1 {
			b.logger.Warn("queue full, dropping PDU",
				"backend", b.name, "endpoint", client.Endpoint(), "total_failures", count)
		}
	}
}

// RingEndpoints returns the current ring's endpoints in order, for tests and
// introspection.
func (b *Backend) RingEndpoints() []string {
	members := b.ring.Members()
	out := make([]string, len(members))
	for i, c := range members {
		out[i] = c.Endpoint()
	}
	return out
}

// ClientAt exposes the ring member selected for code, for tests.
func (b *Backend) ClientAt(code uint32) *statsdclient.Client {
	return b.ring.Pick(code)
}

// ClientForEndpoint returns the first ring member matching endpoint, or nil.
// Exposed for identity checks in tests (spec.md §8 property 6).
func (b *Backend) ClientForEndpoint(endpoint string) *statsdclient.Client {
	for _, c := range b.ring.Members() {
		if c.Endpoint() == endpoint {
			return c
		}
	}
	return nil
}
