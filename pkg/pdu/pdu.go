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

// Package pdu implements the immutable view over one StatsD protocol data
// unit: name:value|type[|@sample].
package pdu

import "bytes"

// PDU is an immutable byte-slice view of one StatsD line, with no trailing
// newline. The buffer is shared, never copied, except by WithPrefixSuffix.
type PDU struct {
	buf        []byte
	colonIndex int
	pipeIndex  int
}

// New parses buf as a StatsD line. It returns nil if buf does not contain a
// ':' followed later by a '|', per spec.md §4.1 ("Construct a PDU iff the
// candidate contains a ':' followed by a '|'").
func New(buf []byte) *PDU {
	colon := bytes.IndexByte(buf, ':')
	if colon < 0 {
		return nil
	}
	pipe := bytes.IndexByte(buf[colon+1:], '|')
	if pipe < 0 {
		return nil
	}
	pipe += colon + 1
	return &PDU{buf: buf, colonIndex: colon, pipeIndex: pipe}
}

// Bytes returns the full underlying line, shared with the caller's buffer.
func (p *PDU) Bytes() []byte {
	return p.buf
}

// Name returns the metric name: everything before the first ':'.
func (p *PDU) Name() []byte {
	return p.buf[:p.colonIndex]
}

// Value returns the metric value: between ':' and '|'.
func (p *PDU) Value() []byte {
	return p.buf[p.colonIndex+1 : p.pipeIndex]
}

// Type returns the metric type: after '|', up to an optional "|@sample"
// suffix.
func (p *PDU) Type() []byte {
	rest := p.buf[p.pipeIndex+1:]
	if at := bytes.IndexByte(rest, '|'); at >= 0 {
		return rest[:at]
	}
	return rest
}

// Clone returns a PDU sharing the same underlying buffer. It exists to make
// the "cheap clone" contract in spec.md §3 explicit at call sites.
func (p *PDU) Clone() *PDU {
	clone := *p
	return &clone
}

// WithPrefixSuffix returns a new PDU whose name is prefix ∥ name ∥ suffix; the
// value and type segments are unchanged. When both prefix and suffix are
// empty it returns p unmodified without allocating, per spec.md §4.1.
func (p *PDU) WithPrefixSuffix(prefix, suffix []byte) *PDU {
	if len(prefix) == 0 && len(suffix) == 0 {
		return p
	}
	name := p.Name()
	rest := p.buf[p.colonIndex:]
	newBuf := make([]byte, 0, len(prefix)+len(name)+len(suffix)+len(rest))
	newBuf = append(newBuf, prefix...)
	newBuf = append(newBuf, name...)
	newBuf = append(newBuf, suffix...)
	newBuf = append(newBuf, rest...)
	return &PDU{
		buf:        newBuf,
		colonIndex: len(prefix) + len(name) + len(suffix),
		pipeIndex:  len(prefix) + len(name) + len(suffix) + (p.pipeIndex - p.colonIndex),
	}
}
