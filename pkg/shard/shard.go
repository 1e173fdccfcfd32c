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

// Package shard implements the hash-indexed Ring used to pick a downstream
// endpoint for a PDU, and the legacy-compatible murmur3 hash that feeds it.
package shard

import (
	"github.com/spaolacci/murmur3"

	"github.com/uber/statsrelay/pkg/pdu"
)

// hashSeed is fixed to match the legacy relay byte-for-byte (spec.md §4.2).
const hashSeed uint32 = 0xACCD3D34

// Hash returns the murmur3_32 hash of p's name, seeded to match the legacy
// relay.
func Hash(p *pdu.PDU) uint32 {
	return murmur3.Sum32WithSeed(p.Name(), hashSeed)
}

// Ring is an insertion-ordered, hash-indexed sequence of members. It is not
// safe for concurrent writes; callers that replace a Ring do so by building a
// new one and swapping the pointer/value wholesale.
type Ring[T any] struct {
	members []T
}

// New returns an empty Ring.
func New[T any]() *Ring[T] {
	return &Ring[T]{}
}

// Push appends a member in insertion order. Duplicates are preserved
// deliberately: the discovery Repeat transform relies on repeated endpoints
// to weight the ring (spec.md §4.4).
func (r *Ring[T]) Push(member T) {
	r.members = append(r.members, member)
}

// Len returns the number of members.
func (r *Ring[T]) Len() int {
	return len(r.members)
}

// Members returns the ring's members in insertion order. Callers must treat
// the returned slice as read-only.
func (r *Ring[T]) Members() []T {
	return r.members
}

// Pick returns the member at code mod Len(). It panics if Len() == 0;
// callers must check Len() first (spec.md §3: "length never zero during a
// successful pick").
func (r *Ring[T]) Pick(code uint32) T {
	return r.members[int(code)%len(r.members)]
}

// PickCode computes the selector code for a ring of the given length against
// a PDU, preserving the legacy len==1 special case: code is forced to 1
// (which reduces to index 0) rather than using the hash, per spec.md §4.2
// and §9 ("Legacy compatibility").
func PickCode(p *pdu.PDU, length int) uint32 {
	if length == 1 {
		return 1
	}
	return Hash(p)
}
