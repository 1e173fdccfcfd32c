package shard

import (
	"testing"

	"github.com/uber/statsrelay/pkg/pdu"
)

func nameHash(name string) uint32 {
	p := pdu.New([]byte(name + ":1|c"))
	return Hash(p)
}

// TestHashRingSelection locks the legacy seed and modulo selector: for a
// 4-element ring, apple/banana/orange/lemon must pick indices 2/3/0/1
// respectively (spec.md §8 property 2).
func TestHashRingSelection(t *testing.T) {
	ring := New[int]()
	ring.Push(0)
	ring.Push(1)
	ring.Push(2)
	ring.Push(3)

	cases := map[string]int{
		"apple":  2,
		"banana": 3,
		"orange": 0,
		"lemon":  1,
	}
	for name, want := range cases {
		code := nameHash(name)
		got := ring.Pick(code)
		if got != want {
			t.Errorf("pick(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestRingSingleMemberAlwaysPicksZero(t *testing.T) {
	ring := New[string]()
	ring.Push("only")
	for _, name := range []string{"apple", "banana", "anything"} {
		code := PickCode(pdu.New([]byte(name+":1|c")), ring.Len())
		if got := ring.Pick(code); got != "only" {
			t.Errorf("pick(%q) = %q, want only", name, got)
		}
	}
}

func TestRingPreservesDuplicates(t *testing.T) {
	ring := New[string]()
	for i := 0; i < 4; i++ {
		ring.Push("a")
	}
	for i := 0; i < 4; i++ {
		ring.Push("b")
	}
	if ring.Len() != 8 {
		t.Fatalf("len = %d, want 8", ring.Len())
	}
}
