package core

import (
	"bytes"
	"math/big"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// xorDistance returns the XOR distance between two hashes as a magnitude,
// the same metric core/kademlia.go's bucket distance uses.
func xorDistance(a, b Hash) *big.Int {
	var diff [HashLen]byte
	for i := range diff {
		diff[i] = a[i] ^ b[i]
	}
	return new(big.Int).SetBytes(diff[:])
}

// BlockServerPort is the fixed TCP port every fleet member listens on for
// the insert/request sub-protocols (§6). The membership collaborator only
// ever carries the 4-byte address; the port is a fleet-wide constant.
const BlockServerPort = 9090

// ringNode is one member of the routing ring: a server address and the
// hash of that address, ordered by hash ascending.
type ringNode struct {
	addr NodeAddr
	hash Hash
}

// Ring is the hash-sorted membership list used to pick the destination
// server for a block hash (§4.A). It has no wrap: route returns the first
// node whose hash exceeds the query, or the last node, never circling back.
//
// Mutations (Add/Remove) come from the membership collaborator; Route is
// called on every transfer attempt. Per §5 this is a classic
// reader/writer split — the ring is tiny and rebuilds fully on startup, so
// a sync.RWMutex is all the contention discipline needed (Design Notes,
// "Global mutable ring + variadic logger").
type Ring struct {
	mu     sync.RWMutex
	nodes  []ringNode // sorted ascending by hash
	logger *logrus.Logger
}

// NewRing constructs an empty ring. A nil logger falls back to logrus's
// standard logger, matching the teacher's nil-logger convention in
// internal/charity_pool_management.go-style constructors.
func NewRing(logger *logrus.Logger) *Ring {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ring{logger: logger}
}

// Add inserts a node for addr. Duplicate hashes are a caller bug (§4.A:
// "callers must not submit duplicates") — Add logs a warning and
// otherwise does nothing on a duplicate rather than corrupting the sort
// order.
func (r *Ring) Add(addr NodeAddr) {
	h := HashBytes(addr[:])
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.nodes), func(i int) bool {
		return bytes.Compare(r.nodes[i].hash[:], h[:]) >= 0
	})
	if i < len(r.nodes) && r.nodes[i].hash == h {
		r.logger.Warnf("ring: duplicate add for %s, ignoring", addr)
		return
	}
	r.nodes = append(r.nodes, ringNode{})
	copy(r.nodes[i+1:], r.nodes[i:])
	r.nodes[i] = ringNode{addr: addr, hash: h}
	r.logger.Infof("ring: added %s (%s)", addr, h)
}

// Remove locates the node for addr and unlinks it. Per §4.A/§7 this is
// fatal if addr is absent — the membership collaborator is not expected
// to announce removal of a server it never announced.
func (r *Ring) Remove(addr NodeAddr) error {
	h := HashBytes(addr[:])
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.nodes), func(i int) bool {
		return bytes.Compare(r.nodes[i].hash[:], h[:]) >= 0
	})
	if i >= len(r.nodes) || r.nodes[i].hash != h {
		return fatalf("remove: no such ring member "+addr.String(), nil)
	}
	r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
	r.logger.Infof("ring: removed %s", addr)
	return nil
}

// Len returns the current ring size.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Route returns the destination address for queryHash at the given
// offset (§4.A). off 0 is the primary pick: the first node whose hash
// exceeds queryHash, or the last node if none does (no wraparound). off 1
// and 2 pick a neighbor of the primary — the closer one for 1, the
// farther for 2 — so retries deterministically walk a small, stable
// neighborhood of the hash.
//
// Route on an empty ring is fatal (§4.A, §7).
func (r *Ring) Route(queryHash Hash, off int) (NodeAddr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return NodeAddr{}, fatalf("route on empty ring", nil)
	}

	i := sort.Search(len(r.nodes), func(i int) bool {
		return bytes.Compare(r.nodes[i].hash[:], queryHash[:]) > 0
	})
	if i == len(r.nodes) {
		i = len(r.nodes) - 1
	}
	primary := r.nodes[i]

	if off == 0 || len(r.nodes) == 1 {
		return primary.addr, nil
	}

	hasPrev := i > 0
	hasNext := i < len(r.nodes)-1

	switch {
	case hasPrev && !hasNext:
		return r.nodes[i-1].addr, nil
	case hasNext && !hasPrev:
		return r.nodes[i+1].addr, nil
	default:
		// Distance is the XOR of query and neighbor hash, compared as a
		// big-endian magnitude (the same metric core/kademlia.go-style
		// bucket distances use), not a lexicographic memcmp of the raw
		// hashes themselves.
		closer, farther := r.nodes[i-1], r.nodes[i+1]
		dPrev := xorDistance(queryHash, r.nodes[i-1].hash)
		dNext := xorDistance(queryHash, r.nodes[i+1].hash)
		if dNext.Cmp(dPrev) < 0 {
			closer, farther = farther, closer
		}
		if off == 1 {
			return closer.addr, nil
		}
		return farther.addr, nil
	}
}
