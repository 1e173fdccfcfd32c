package backends

import (
	"io"
	"log/slog"
	"testing"

	"github.com/uber/statsrelay/pkg/backend"
	"github.com/uber/statsrelay/pkg/pdu"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplaceAndNames(t *testing.T) {
	r := New(testLogger())
	if err := r.Replace("a", backend.Config{ShardMap: []string{"127.0.0.1:1"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Replace("b", backend.Config{ShardMap: []string{"127.0.0.1:2"}}); err != nil {
		t.Fatal(err)
	}
	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

func TestRemove(t *testing.T) {
	r := New(testLogger())
	if err := r.Replace("a", backend.Config{ShardMap: []string{"127.0.0.1:1"}}); err != nil {
		t.Fatal(err)
	}
	r.Remove("a")
	if _, ok := r.Get("a"); ok {
		t.Error("expected backend a to be removed")
	}
	if len(r.Names()) != 0 {
		t.Error("expected no names left")
	}
}

func TestProvideFansOutToAllBackends(t *testing.T) {
	r := New(testLogger())
	if err := r.Replace("a", backend.Config{ShardMap: []string{"127.0.0.1:1"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Replace("b", backend.Config{ShardMap: []string{"127.0.0.1:2"}}); err != nil {
		t.Fatal(err)
	}
	// Must not panic or block; actual delivery is covered in backend/statsdclient tests.
	r.Provide(pdu.New([]byte("apple:1|c")))

	ba, _ := r.Get("a")
	bb, _ := r.Get("b")
	defer ba.Shutdown()
	defer bb.Shutdown()
}

func TestReplacePreservesConnectionsAcrossReloads(t *testing.T) {
	r := New(testLogger())
	if err := r.Replace("a", backend.Config{ShardMap: []string{"127.0.0.1:1"}}); err != nil {
		t.Fatal(err)
	}
	before, _ := r.Get("a")
	c1 := before.ClientForEndpoint("127.0.0.1:1")

	if err := r.Replace("a", backend.Config{ShardMap: []string{"127.0.0.1:1"}}); err != nil {
		t.Fatal(err)
	}
	after, _ := r.Get("a")
	c2 := after.ClientForEndpoint("127.0.0.1:1")

	if c1 != c2 {
		t.Error("expected client to be reused across Replace calls")
	}
	defer after.Shutdown()
}
