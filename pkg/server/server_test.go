package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/uber/statsrelay/pkg/backend"
	"github.com/uber/statsrelay/pkg/backends"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestTCPIngestDeliversLines(t *testing.T) {
	sinkLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer sinkLn.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := sinkLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	registry := backends.New(testLogger())
	if err := registry.Replace("b1", backend.Config{ShardMap: []string{sinkLn.Addr().String()}}); err != nil {
		t.Fatal(err)
	}

	bind := freePort(t)
	srv := New(bind, registry, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(runDone)
	}()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", bind)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write([]byte("hello:1|c\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case line := <-received:
		if line != "hello:1|c\n" {
			t.Errorf("got %q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forwarded line")
	}

	conn.Close()
	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestUDPIngestDeliversLines(t *testing.T) {
	sinkLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer sinkLn.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := sinkLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	registry := backends.New(testLogger())
	if err := registry.Replace("b1", backend.Config{ShardMap: []string{sinkLn.Addr().String()}}); err != nil {
		t.Fatal(err)
	}

	bind := freePort(t)
	srv := New(bind, registry, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("udp", bind)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("udp.metric:1|c\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case line := <-received:
		if line != "udp.metric:1|c\n" {
			t.Errorf("got %q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forwarded udp line")
	}
}
