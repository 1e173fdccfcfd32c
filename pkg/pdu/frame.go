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

package pdu

import "bytes"

// ExtractFrames scans buf for complete '\n'-terminated lines (trimming a
// preceding '\r'), returning one PDU per well-formed line and the remaining
// trailing bytes that did not end in a newline. Malformed candidate lines are
// silently discarded, per spec.md §4.1.
//
// buf is not modified, and the returned PDUs are views into it. The returned
// residual is a fresh copy of the trailing bytes, safe to reuse as the start
// of the next read's buffer.
func ExtractFrames(buf []byte) (frames []*PDU, residual []byte) {
	for {
		nl := bytes.IndexByte(buf, '\n')
		if nl < 0 {
			break
		}
		line := buf[:nl]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if p := New(line); p != nil {
			frames = append(frames, p)
		}
		buf = buf[nl+1:]
	}
	residual = append([]byte(nil), buf...)
	return frames, residual
}

// ExtractDatagramFrames behaves like ExtractFrames, but additionally attempts
// to parse any trailing remnant (bytes without a terminating newline) as a
// standalone PDU, since UDP datagrams are self-delimiting (spec.md §4.1 "UDP
// specifics").
func ExtractDatagramFrames(buf []byte) []*PDU {
	frames, residual := ExtractFrames(buf)
	if len(residual) > 0 {
		if p := New(residual); p != nil {
			frames = append(frames, p)
		}
	}
	return frames
}
