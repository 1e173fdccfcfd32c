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

// Package statsdclient implements the per-downstream-endpoint
// write-combining sender described in spec.md §4.3: a bounded submission
// channel plus a batcher/sender task pair that combine writes, reconnect
// with backoff, and survive write failures without ever blocking the
// submitter.
package statsdclient

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jpillora/backoff"

	"github.com/uber/statsrelay/internal/tripwire"
	"github.com/uber/statsrelay/pkg/pdu"
)

const (
	// sendDelay is the ticker period driving write-combining flushes.
	sendDelay = 500 * time.Millisecond
	// sendThreshold is the buffer size at which the batcher flushes early.
	sendThreshold = 1024 * 1024
	// connectTimeout bounds a single connection attempt.
	connectTimeout = 15 * time.Second
	// reconnectDelay is the fixed wait between failed connection attempts.
	reconnectDelay = 5 * time.Second
	// initialBufferCapacity is the batcher's starting outbound buffer size.
	initialBufferCapacity = 2 * 1024 * 1024
	// bufferGrowth is the reservation step applied when the buffer runs low
	// on spare capacity.
	bufferGrowth = 1024 * 1024
	// DefaultQueueCapacity is the default submission channel capacity.
	DefaultQueueCapacity = 100000
)

// ErrQueueFull is returned by TrySubmit when the submission channel is at
// capacity. Per spec.md §4.3, the caller (a Backend) is responsible for
// counting and logging this.
var ErrQueueFull = errors.New("statsdclient: submission queue full")

// Client is one per downstream endpoint: a bounded submission channel plus
// the background batcher/sender/ticker tasks that own the TCP connection.
// A *Client is a cheap, cloneable handle: all copies share the same
// submission channel and shutdown signal.
type Client struct {
	endpoint string
	submit   chan *pdu.PDU
	trigger  tripwire.Trigger
	wire     tripwire.Tripwire
}

// New creates a Client for endpoint and starts its background tasks. The
// submission channel has capacity queueCapacity (spec.md §3 default
// 100000). logger is used for connection lifecycle and error logging.
func New(endpoint string, queueCapacity int, logger *slog.Logger) *Client {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	trigger, wire := tripwire.New()
	c := &Client{
		endpoint: endpoint,
		submit:   make(chan *pdu.PDU, queueCapacity),
		trigger:  trigger,
		wire:     wire,
	}

	tick := make(chan struct{}, 1)
	flush := make(chan []byte, 100)

	go ticker(wire, tick)
	go batcher(wire, c.submit, tick, flush)
	go sender(wire, logger, endpoint, flush)

	return c
}

// Endpoint returns the host:port this client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// TrySubmit enqueues a PDU without blocking. It returns ErrQueueFull if the
// submission channel is at capacity.
func (c *Client) TrySubmit(p *pdu.PDU) error {
	select {
	case c.submit <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown trips the client's cancellation signal. Per spec.md §5, shutdown
// does not attempt to flush in-flight buffers: it is a deliberate drop,
// consistent with StatsD's lossy contract.
func (c *Client) Shutdown() {
	c.trigger.Fire()
}

// ticker pings the batcher every sendDelay so it can flush a partially
// filled buffer. It exits when the tripwire fires, which is also what stops
// the batcher; it does not otherwise watch the batcher. This ticker (rather than a per-submit timer) is deliberate per
// spec.md §9: per-submit timer churn is exactly what it avoids.
func ticker(wire tripwire.Tripwire, tick chan<- struct{}) {
	t := time.NewTicker(sendDelay)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case tick <- struct{}{}:
			case <-wire.Done():
				return
			}
		case <-wire.Done():
			return
		}
	}
}

// batcher implements the select-over-(submission channel, ticker) state
// machine from spec.md §4.3 and §9: it appends each PDU's bytes plus a
// newline to an outbound buffer, and flushes to the sender when the buffer
// crosses sendThreshold or a tick fires on a non-empty buffer. It exits as
// soon as the tripwire fires, dropping any partially filled buffer rather
// than draining it (spec.md §4.3, §4.9): with the ring no longer
// referencing this client, submit sees no further sends and tick stops once
// the ticker goroutine exits, so without this case the batcher would block
// forever on an empty select.
func batcher(wire tripwire.Tripwire, submit <-chan *pdu.PDU, tick <-chan struct{}, flush chan<- []byte) {
	defer close(flush)
	buf := make([]byte, 0, initialBufferCapacity)

	send := func() {
		if len(buf) == 0 {
			return
		}
		out := buf
		buf = make([]byte, 0, initialBufferCapacity)
		flush <- out
	}

	for {
		select {
		case p, ok := <-submit:
			if !ok {
				send()
				return
			}
			line := p.Bytes()
			if cap(buf)-len(buf) < len(line)+1 {
				grown := make([]byte, len(buf), cap(buf)+bufferGrowth)
				copy(grown, buf)
				buf = grown
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
			if len(buf) >= sendThreshold {
				send()
			}
		case <-tick:
			send()
		case <-wire.Done():
			return
		}
	}
}

// trimToNextNewline discards bytes up to and including the next '\n' in buf,
// treating a partial line left over from a failed or zero-byte write as
// unrecoverable (spec.md §4.3).
func trimToNextNewline(buf []byte) []byte {
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		return buf[i+1:]
	}
	return nil
}

// sender owns the lazily-established TCP connection and writes
// write-combined chunks to it, reconnecting on any failure.
func sender(wire tripwire.Tripwire, logger *slog.Logger, endpoint string, flush <-chan []byte) {
	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		var buf []byte
		select {
		case b, ok := <-flush:
			if !ok {
				return
			}
			buf = b
		case <-wire.Done():
			// Don't wait on the batcher to close flush: the tripwire firing
			// is itself the signal to stop, even mid-wait for more data
			// (spec.md §4.3, §4.9 "both tasks exit without draining").
			return
		}

		for len(buf) > 0 {
			if wire.Tripped() {
				return
			}
			if conn == nil {
				var ok bool
				conn, ok = connect(wire, logger, endpoint)
				if !ok {
					return
				}
			}

			n, err := conn.Write(buf)
			if n > 0 {
				bytesWrittenTotal.WithLabelValues(endpoint).Add(float64(n))
				buf = buf[n:]
			}
			switch {
			case err != nil:
				logger.Warn("statsd client write error, reconnecting", "endpoint", endpoint, "error", err)
				writeErrorsTotal.WithLabelValues(endpoint).Inc()
				conn.Close()
				conn = nil
				buf = trimToNextNewline(buf)
			case n == 0 && len(buf) > 0:
				writeErrorsTotal.WithLabelValues(endpoint).Inc()
				conn.Close()
				conn = nil
				buf = trimToNextNewline(buf)
			}
		}
	}
}

// connect repeatedly attempts to dial endpoint, sleeping reconnectDelay
// between attempts, until it succeeds or the tripwire fires.
func connect(wire tripwire.Tripwire, logger *slog.Logger, endpoint string) (net.Conn, bool) {
	b := &backoff.Backoff{Min: reconnectDelay, Max: reconnectDelay}
	dialer := &net.Dialer{Timeout: connectTimeout}
	for {
		if wire.Tripped() {
			return nil, false
		}
		conn, err := dialer.DialContext(wire.Context(), "tcp", endpoint)
		if err != nil {
			connectErrorsTotal.WithLabelValues(endpoint).Inc()
			logger.Warn("statsd client connect error", "endpoint", endpoint, "error", err)
			select {
			case <-time.After(b.Duration()):
			case <-wire.Done():
				return nil, false
			}
			continue
		}
		connectsTotal.WithLabelValues(endpoint).Inc()
		logger.Info("statsd client connected", "endpoint", endpoint)
		return conn, true
	}
}
