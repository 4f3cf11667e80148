package core

import (
	"errors"
	"testing"
)

func addrs(n int) []NodeAddr {
	out := make([]NodeAddr, n)
	for i := range out {
		out[i] = NodeAddr{10, 0, 0, byte(i + 1)}
	}
	return out
}

func TestRingOrderAfterAddRemove(t *testing.T) {
	r := NewRing(nil)
	for _, a := range addrs(10) {
		r.Add(a)
	}
	if r.Len() != 10 {
		t.Fatalf("len = %d, want 10", r.Len())
	}

	seen := make(map[Hash]bool)
	var prev Hash
	for i, n := range r.nodes {
		if seen[n.hash] {
			t.Fatalf("duplicate hash at index %d", i)
		}
		seen[n.hash] = true
		if i > 0 && n.hash.String() < prev.String() {
			t.Fatalf("ring out of order at index %d", i)
		}
		prev = n.hash
	}

	if err := r.Remove(addrs(10)[3]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if r.Len() != 9 {
		t.Fatalf("len after remove = %d, want 9", r.Len())
	}
	if err := r.Remove(addrs(10)[3]); err == nil {
		t.Fatalf("expected error removing already-removed address")
	}
}

func TestRingAddDuplicateIsNoop(t *testing.T) {
	r := NewRing(nil)
	a := addrs(1)[0]
	r.Add(a)
	r.Add(a)
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1 after duplicate add", r.Len())
	}
}

func TestRouteEmptyRingIsFatal(t *testing.T) {
	r := NewRing(nil)
	_, err := r.Route(HashBytes([]byte("x")), 0)
	if err == nil {
		t.Fatal("expected error routing on empty ring")
	}
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
}

func TestRouteStability(t *testing.T) {
	r := NewRing(nil)
	for _, a := range addrs(20) {
		r.Add(a)
	}
	h := HashBytes([]byte("some-block"))

	primary, err := r.Route(h, 0)
	if err != nil {
		t.Fatalf("route primary: %v", err)
	}
	again, err := r.Route(h, 0)
	if err != nil {
		t.Fatalf("route primary again: %v", err)
	}
	if primary != again {
		t.Fatalf("route(h, 0) not stable: %v != %v", primary, again)
	}

	n1, err := r.Route(h, 1)
	if err != nil {
		t.Fatalf("route neighbor 1: %v", err)
	}
	n2, err := r.Route(h, 2)
	if err != nil {
		t.Fatalf("route neighbor 2: %v", err)
	}
	if n1 == n2 {
		t.Fatalf("route(h, 1) and route(h, 2) returned the same neighbor %v", n1)
	}
}

func TestRouteSingleNodeRing(t *testing.T) {
	r := NewRing(nil)
	only := addrs(1)[0]
	r.Add(only)
	for off := 0; off < 3; off++ {
		addr, err := r.Route(HashBytes([]byte("x")), off)
		if err != nil {
			t.Fatalf("route off=%d: %v", off, err)
		}
		if addr != only {
			t.Fatalf("route off=%d = %v, want %v", off, addr, only)
		}
	}
}
