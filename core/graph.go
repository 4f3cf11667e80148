package core

import (
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Graph is the immutable bipartite adjacency between d data-block
// positions and c check-block positions for one supported data-block
// count (§3, §4.B). set(i, j) reports whether data block i contributes
// (by XOR) to check block j.
//
// Graphs must be reproduced bit-for-bit by every proxy in the fleet —
// buildGraph is a pure, seeded function of d alone, never touched again after
// construction.
type Graph struct {
	D, C int
	bits *bitset.BitSet // flattened i*C+j
}

func (g *Graph) index(i, j int) uint { return uint(i*g.C + j) }

// Set reports whether data block i feeds check block j.
func (g *Graph) Set(i, j int) bool { return g.bits.Test(g.index(i, j)) }

// DataNeighbors returns the check-block positions that data block i
// feeds.
func (g *Graph) DataNeighbors(i int) []int {
	out := make([]int, 0, 2)
	for j := 0; j < g.C; j++ {
		if g.Set(i, j) {
			out = append(out, j)
		}
	}
	return out
}

// CheckNeighbors returns the data-block positions that feed check block
// j.
func (g *Graph) CheckNeighbors(j int) []int {
	out := make([]int, 0, g.D/g.C+2)
	for i := 0; i < g.D; i++ {
		if g.Set(i, j) {
			out = append(out, i)
		}
	}
	return out
}

// checkCount derives c(d), the number of check blocks for d data blocks:
// roughly 25% redundancy, at least one check block.
func checkCount(d int) int {
	c := (d + 3) / 4
	if c < 1 {
		c = 1
	}
	return c
}

// buildGraph deterministically constructs G_d. Every data block is given
// two distinct check-block neighbors (only one when c == 1): a primary
// striped parity group (i % c) and a secondary group offset by a
// deterministic pseudo-random shift seeded on d, so the adjacency is a
// genuine overlapping bipartite graph exercising the iterative two-pass
// decode (§4.C) rather than plain per-group parity.
//
// Reconstruction of a data block from two check blocks that share a
// lowest-numbered data block (§9, Open Question (a)) is out of scope and
// this construction does not attempt it.
func buildGraph(d int) *Graph {
	c := checkCount(d)
	g := &Graph{D: d, C: c, bits: bitset.New(uint(d * c))}

	rng := rand.New(rand.NewSource(int64(d)*1000003 + 7))
	for i := 0; i < d; i++ {
		primary := i % c
		g.bits.Set(g.index(i, primary))
		if c > 1 {
			secondary := (primary + 1 + rng.Intn(c-1)) % c
			if secondary != primary {
				g.bits.Set(g.index(i, secondary))
			}
		}
	}
	return g
}

// GraphTable is the compile-time array of graphs indexed by d-1 (§4.B),
// built lazily up to Max and cached — functionally equivalent to a
// precompiled table since buildGraph is pure and deterministic.
type GraphTable struct {
	Max int

	mu     sync.Mutex
	graphs []*Graph // index d-1
}

// NewGraphTable constructs a table supporting data-block counts up to
// max (G_max).
func NewGraphTable(max int) *GraphTable {
	return &GraphTable{Max: max, graphs: make([]*Graph, max)}
}

// Graph returns G_d, building and caching it on first use.
func (t *GraphTable) Graph(d int) (*Graph, error) {
	if d <= 0 || d > t.Max {
		return nil, ErrUnsupportedSize
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.graphs[d-1] == nil {
		t.graphs[d-1] = buildGraph(d)
	}
	return t.graphs[d-1], nil
}

// blockUnit is the 64·√L term from §3's block-size derivation, rounded
// up.
func blockUnit(l int) int {
	return int(ceilSqrt64(l))
}

// ceilSqrt64 returns ⌈64·√l⌉ using integer arithmetic only, so every
// proxy derives the identical value bit-for-bit regardless of
// floating-point rounding (§4.B: "implementers must reproduce this
// derivation bit-for-bit for interoperability"). 64·√l = √(4096·l), so
// this reduces to an integer ceiling square root of 4096·l.
func ceilSqrt64(l int) int64 {
	if l <= 0 {
		return 0
	}
	n := int64(l) * 4096
	x := isqrt(n)
	if x*x < n {
		x++
	}
	return x
}

// isqrt returns floor(√n) for n ≥ 0 via Newton's method on integers.
func isqrt(n int64) int64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// deriveDC derives (d, c, B) from plaintext length l per §4.B: candidate
// d = l / ⌈64·√l⌉; reject if d exceeds G_max; then inflate B monotonically
// (starting from the unit) until d·B ≥ l + pad, where pad is the
// PKCS-style block padding to a 16-byte boundary.
//
// ⌈64·√l⌉ exceeds l for every l < 4096 (64·√l > l ⟺ √l < 64 ⟺ l < 4096),
// so the floor division alone would degenerate to d == 0 for any
// plaintext under ~4KB. d is clamped to a floor of 1 — a single data
// block is still a valid object — and the B-inflation loop below already
// grows b to cover l regardless of how small the initial unit's quotient
// is.
func deriveDC(table *GraphTable, l int) (d, c, b int, err error) {
	if l <= 0 {
		return 0, 0, 0, ErrUnsupportedSize
	}
	unit := blockUnit(l)
	if unit == 0 {
		return 0, 0, 0, ErrUnsupportedSize
	}
	d = l / unit
	if d < 1 {
		d = 1
	}
	if d > table.Max {
		return 0, 0, 0, ErrUnsupportedSize
	}

	pad := paddedLen(l) - l
	b = unit
	for d*b < l+pad {
		b++
	}

	g, err := table.Graph(d)
	if err != nil {
		return 0, 0, 0, err
	}
	return d, g.C, b, nil
}

// paddedLen returns L + (16 − L mod 16) per §3 invariant 1: padding is
// always added, even when L is already 16-byte aligned (PKCS-7-style,
// so the cipher boundary is unambiguous).
func paddedLen(l int) int {
	return l + (16 - l%16)
}
