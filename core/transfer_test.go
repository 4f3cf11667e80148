package core

import (
	"context"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
)

func TestFanoutRequestRetryBoundLeavesBlockMissing(t *testing.T) {
	ring, servers := newTestRing(t, "127.0.4.1", "127.0.4.2", "127.0.4.3")
	engine := NewTransferEngine(ring, TransferEngineConfig{
		Concurrency:    4,
		RequestRetries: 3,
		DialTimeout:    2 * time.Second,
		IOTimeout:      2 * time.Second,
	})

	payload := []byte("a single block that no server actually holds")
	h := HashBytes(payload)
	for _, s := range servers {
		s.mu.Lock()
		s.drop[h] = true
		s.mu.Unlock()
	}

	blocks := make([]byte, len(payload))
	have := bitset.New(1)
	hashes := []Hash{h}

	if err := engine.FanoutRequest(context.Background(), blocks, have, 1, len(payload), hashes); err != nil {
		t.Fatalf("fanout request: %v", err)
	}
	if have.Test(0) {
		t.Fatal("expected block to remain missing after exhausting the retry budget")
	}
}

func TestFanoutRequestSucceedsWhenPresent(t *testing.T) {
	ring, servers := newTestRing(t, "127.0.5.1", "127.0.5.2", "127.0.5.3")
	engine := NewTransferEngine(ring, TransferEngineConfig{
		Concurrency:    4,
		RequestRetries: 3,
		DialTimeout:    2 * time.Second,
		IOTimeout:      2 * time.Second,
	})

	payload := []byte("a block every server is seeded with")
	h := HashBytes(payload)
	for _, s := range servers {
		s.mu.Lock()
		s.blocks[h] = payload
		s.mu.Unlock()
	}

	blocks := make([]byte, len(payload))
	have := bitset.New(1)
	hashes := []Hash{h}

	if err := engine.FanoutRequest(context.Background(), blocks, have, 1, len(payload), hashes); err != nil {
		t.Fatalf("fanout request: %v", err)
	}
	if !have.Test(0) {
		t.Fatal("expected block to be marked present")
	}
	if string(blocks) != string(payload) {
		t.Fatal("fetched block content mismatch")
	}
}
