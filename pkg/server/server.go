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

// Package server implements the StatsD ingest surface described in
// spec.md §4.7: a TCP listener plus a UDP receiver, both parsing
// newline-framed PDUs into a Backends registry.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uber/statsrelay/pkg/backends"
	"github.com/uber/statsrelay/pkg/pdu"
)

const (
	// tcpReadTimeout bounds a single TCP read; on expiry the connection is
	// closed (spec.md §4.7).
	tcpReadTimeout = 62 * time.Second
	// goodbyeWriteTimeout bounds the best-effort goodbye line written on
	// cooperative shutdown.
	goodbyeWriteTimeout = time.Second
	// udpSocketTimeout lets the UDP worker thread observe the shutdown flag
	// without blocking indefinitely (spec.md §4.7).
	udpSocketTimeout = time.Second
	// readReserve is the buffer growth reservation applied below a low
	// headroom threshold (spec.md §4.7 "reserve 64 KiB when below
	// threshold").
	readReserve = 64 * 1024

	goodbyeMessage = "server closing due to shutdown, goodbye\n"
)

var (
	tcpConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statsrelay_tcp_connections_total",
		Help: "The total number of TCP connections accepted.",
	})
	tcpErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statsrelay_tcp_connection_errors_total",
		Help: "The number of errors encountered reading from a TCP connection.",
	})
	udpPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statsrelay_udp_packets_total",
		Help: "The total number of UDP datagrams received.",
	})
	linesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statsrelay_lines_total",
		Help: "The total number of StatsD lines successfully parsed.",
	})
)

// Server is the combined TCP/UDP ingest surface bound to one address.
type Server struct {
	bind     string
	registry *backends.Registry
	logger   *slog.Logger
}

// New returns a Server that will bind to addr once Run is called.
func New(bind string, registry *backends.Registry, logger *slog.Logger) *Server {
	return &Server{bind: bind, registry: registry, logger: logger}
}

// Run binds both the TCP listener and the UDP socket and serves until ctx
// is cancelled. It blocks until both have fully stopped, matching
// spec.md §4.7's "the main task joins it via a blocking off-task call" for
// the UDP worker thread.
func (s *Server) Run(ctx context.Context) error {
	tcpListener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	defer tcpListener.Close()

	udpConn, err := net.ListenPacket("udp", s.bind)
	if err != nil {
		return err
	}

	udpDone := make(chan struct{})
	go func() {
		defer close(udpDone)
		s.serveUDP(ctx, udpConn)
	}()

	s.logger.Info("statsd tcp server running", "bind", s.bind)
	s.logger.Info("statsd udp server running", "bind", s.bind)

	go func() {
		<-ctx.Done()
		tcpListener.Close()
	}()

	s.serveTCP(ctx, tcpListener)

	udpConn.Close()
	<-udpDone
	return nil
}

// serveTCP accepts connections until ctx is cancelled or Accept fails.
func (s *Server) serveTCP(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("stopped tcp listener loop")
				return
			}
			s.logger.Info("accept error", "error", err)
			return
		}
		tcpConnectionsTotal.Inc()
		s.logger.Info("accepted connection", "remote", conn.RemoteAddr())
		go s.handleTCP(ctx, conn)
	}
}

// handleTCP implements the Reading/Draining state machine from spec.md §4.9.
func (s *Server) handleTCP(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 0, readReserve)
	readBuf := make([]byte, readReserve)

	for {
		if cap(buf)-len(buf) < readReserve {
			grown := make([]byte, len(buf), cap(buf)+readReserve)
			copy(grown, buf)
			buf = grown
		}

		n, err := s.readWithTimeoutOrShutdown(ctx, conn, readBuf)
		switch {
		case errors.Is(err, errShuttingDown):
			s.writeGoodbye(conn)
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			s.logger.Info("read timeout, closing", "remote", conn.RemoteAddr())
			return
		case err != nil && n == 0:
			// Zero-byte read or any other read error: drain what's left,
			// including a final non-newline-terminated PDU attempt, then
			// close (spec.md §4.7).
			frames := pdu.ExtractDatagramFrames(buf)
			for _, p := range frames {
				linesTotal.Inc()
				s.registry.Provide(p)
			}
			if err != io.EOF {
				tcpErrorsTotal.Inc()
				s.logger.Warn("socket error", "remote", conn.RemoteAddr(), "error", err)
			} else {
				s.logger.Info("closing reader (eof)", "remote", conn.RemoteAddr())
			}
			return
		default:
			buf = append(buf, readBuf[:n]...)
			frames, residual := pdu.ExtractFrames(buf)
			for _, p := range frames {
				linesTotal.Inc()
				s.registry.Provide(p)
			}
			buf = residual
		}
	}
}

var errShuttingDown = errors.New("server: shutting down")

// readWithTimeoutOrShutdown races a single read against both the TCP read
// timeout and the shutdown context, matching spec.md §4.7/§5 ("read future
// races the tripwire").
func (s *Server) readWithTimeoutOrShutdown(ctx context.Context, conn net.Conn, buf []byte) (int, error) {
	conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))

	type result struct {
		n   int
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		n, err := conn.Read(buf)
		resultCh <- result{n, err}
	}()

	select {
	case r := <-resultCh:
		return r.n, r.err
	case <-ctx.Done():
		conn.SetReadDeadline(time.Now())
		r := <-resultCh
		if errors.Is(r.err, os.ErrDeadlineExceeded) {
			return 0, errShuttingDown
		}
		return r.n, r.err
	}
}

func (s *Server) writeGoodbye(conn net.Conn) {
	conn.SetWriteDeadline(time.Now().Add(goodbyeWriteTimeout))
	_, _ = conn.Write([]byte(goodbyeMessage))
}

// serveUDP reads datagrams until ctx is cancelled. Per spec.md §4.7 this
// models a dedicated blocking worker: reads use a short deadline so the
// loop can observe ctx between attempts even though Go's UDP API is
// otherwise non-blocking-friendly via SetReadDeadline.
func (s *Server) serveUDP(ctx context.Context, conn net.PacketConn) {
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			s.logger.Info("terminating statsd udp")
			return
		}
		conn.SetReadDeadline(time.Now().Add(udpSocketTimeout))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("udp receiver error", "error", err)
			continue
		}
		udpPacketsTotal.Inc()
		frames := pdu.ExtractDatagramFrames(append([]byte(nil), buf[:n]...))
		for _, p := range frames {
			linesTotal.Inc()
			s.registry.Provide(p)
		}
	}
}
