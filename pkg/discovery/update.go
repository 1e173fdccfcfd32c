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

// Package discovery implements the stream-of-streams that polls named
// sources at configured intervals, applies per-source transforms, dedupes,
// and feeds a reflector cache (spec.md §4.6).
package discovery

import (
	"strings"

	"github.com/uber/statsrelay/pkg/config"
)

// Update is a list of endpoint strings from one discovery source
// (spec.md §3: "DiscoveryUpdate"). Equal content produces no downstream
// reconfiguration; see Equal.
type Update struct {
	Hosts []string
}

// Equal reports content equality, the basis for the dedup invariant in
// spec.md §3 ("identical content produces no downstream reconfiguration").
func (u Update) Equal(o Update) bool {
	if len(u.Hosts) != len(o.Hosts) {
		return false
	}
	for i := range u.Hosts {
		if u.Hosts[i] != o.Hosts[i] {
			return false
		}
	}
	return true
}

// applyTransforms runs u through transforms in config order.
func applyTransforms(u Update, transforms []config.Transform) Update {
	for _, t := range transforms {
		switch t.Type {
		case "format":
			u = applyFormat(u, t.Pattern)
		case "repeat":
			u = applyRepeat(u, t.Count)
		}
	}
	return u
}

// applyFormat rewrites each host via pattern, replacing the literal "{}"
// placeholder. If pattern lacks "{}", the transform is a no-op
// (spec.md §4.6, §8 property 7).
func applyFormat(u Update, pattern string) Update {
	const placeholder = "{}"
	if !strings.Contains(pattern, placeholder) {
		return u
	}
	hosts := make([]string, len(u.Hosts))
	for i, h := range u.Hosts {
		hosts[i] = strings.Replace(pattern, placeholder, h, 1)
	}
	return Update{Hosts: hosts}
}

// applyRepeat repeats each host count times in place. count == 0 is a no-op
// (spec.md §4.6, §8 property 8); count == 1 is the identity case, handled
// naturally by the same loop.
func applyRepeat(u Update, count int) Update {
	if count <= 0 {
		return u
	}
	hosts := make([]string, 0, len(u.Hosts)*count)
	for _, h := range u.Hosts {
		for i := 0; i < count; i++ {
			hosts = append(hosts, h)
		}
	}
	return Update{Hosts: hosts}
}

