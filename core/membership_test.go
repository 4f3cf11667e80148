package core

import (
	"encoding/binary"
	"net"
	"testing"
)

// serveMembership starts a one-shot listener that writes the given wire
// response (a count followed by that many 4-byte addresses, or a bare
// zero count for "shut down") to the first connection it accepts.
func serveMembership(t *testing.T, addrs []NodeAddr) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(addrs)))
		conn.Write(countBuf[:])
		for _, a := range addrs {
			conn.Write(a[:])
		}
	}()
	return ln.Addr().String()
}

func TestMembershipClientFetch(t *testing.T) {
	want := []NodeAddr{{10, 0, 0, 1}, {10, 0, 0, 2}, {10, 0, 0, 3}}
	addr := serveMembership(t, want)

	client := NewMembershipClient(addr, nil)
	got, err := client.Fetch()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d members, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("member %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMembershipClientEmptyListSignalsShutdown(t *testing.T) {
	addr := serveMembership(t, nil)

	client := NewMembershipClient(addr, nil)
	ring := NewRing(nil)
	shutdown, err := LoadRing(client, ring)
	if err != nil {
		t.Fatalf("load ring: %v", err)
	}
	if !shutdown {
		t.Fatal("expected shutdown signal on empty member list")
	}
	if ring.Len() != 0 {
		t.Fatalf("ring len = %d, want 0", ring.Len())
	}
}

func TestLoadRingPopulatesFromMembership(t *testing.T) {
	want := []NodeAddr{{192, 168, 1, 1}, {192, 168, 1, 2}}
	addr := serveMembership(t, want)

	client := NewMembershipClient(addr, nil)
	ring := NewRing(nil)
	shutdown, err := LoadRing(client, ring)
	if err != nil {
		t.Fatalf("load ring: %v", err)
	}
	if shutdown {
		t.Fatal("did not expect shutdown signal")
	}
	if ring.Len() != len(want) {
		t.Fatalf("ring len = %d, want %d", ring.Len(), len(want))
	}
}
