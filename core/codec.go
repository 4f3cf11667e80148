package core

import "github.com/bits-and-blooms/bitset"

// Encode computes the check blocks from the data blocks already present
// in obj (§4.C). obj is laid out as d data blocks followed by c check
// blocks, each blockSize bytes; the check region must be zeroed on entry.
func Encode(g *Graph, obj []byte, blockSize int) {
	for j := 0; j < g.C; j++ {
		check := blockSlice(obj, blockSize, g.D+j)
		for _, i := range g.CheckNeighbors(j) {
			xorInto(check, blockSlice(obj, blockSize, i))
		}
	}
}

// DecodeResult reports the outcome of an iterative decode pass.
type DecodeResult struct {
	Recovered []int // data-block positions reconstructed by this call
	Missing   []int // positions (over d+c) still absent if unrecoverable
}

// Decode iteratively reconstructs missing blocks from present ones
// (§4.C). present marks which of the d+c positions currently hold valid
// bytes; it is updated in place as blocks are recovered. Decode runs to a
// fixed point: repeatedly (1) reconstructing a missing data block from
// any present check block whose other data neighbors are all present,
// then (2) recomputing any missing check block whose full data set is
// present. It returns ErrIrrecoverable with the still-missing positions
// if a full pass makes no progress.
//
// Recovering a data block from two check blocks that share a
// lowest-numbered data block neighbor is not attempted — §9 acknowledges
// this as a documented limitation of the source this is grounded on.
func Decode(g *Graph, obj []byte, blockSize int, present *bitset.BitSet) (*DecodeResult, error) {
	res := &DecodeResult{}
	total := uint(g.D + g.C)

	for {
		progressed := false

		// Pass 1: data from one check.
		for i := 0; i < g.D; i++ {
			if present.Test(uint(i)) {
				continue
			}
			if j, ok := recoverableCheck(g, present, i); ok {
				check := blockSlice(obj, blockSize, g.D+j)
				dst := blockSlice(obj, blockSize, i)
				copy(dst, check)
				for _, k := range g.CheckNeighbors(j) {
					if k == i {
						continue
					}
					xorInto(dst, blockSlice(obj, blockSize, k))
				}
				present.Set(uint(i))
				res.Recovered = append(res.Recovered, i)
				progressed = true
			}
		}

		// Pass 2: check from all data.
		for j := 0; j < g.C; j++ {
			pos := g.D + j
			if present.Test(uint(pos)) {
				continue
			}
			neighbors := g.CheckNeighbors(j)
			allPresent := true
			for _, i := range neighbors {
				if !present.Test(uint(i)) {
					allPresent = false
					break
				}
			}
			if !allPresent {
				continue
			}
			check := blockSlice(obj, blockSize, pos)
			for i := range check {
				check[i] = 0
			}
			for _, i := range neighbors {
				xorInto(check, blockSlice(obj, blockSize, i))
			}
			present.Set(uint(pos))
			progressed = true
		}

		if !progressed {
			break
		}
	}

	missing := make([]int, 0)
	for p := uint(0); p < total; p++ {
		if !present.Test(p) {
			missing = append(missing, int(p))
		}
	}
	if len(missing) > 0 {
		res.Missing = missing
		return res, ErrIrrecoverable
	}
	return res, nil
}

// recoverableCheck finds a present check block j adjacent to missing
// data block i such that every other data block feeding j is present, so
// j can be XORed against them to recover i.
func recoverableCheck(g *Graph, present *bitset.BitSet, i int) (int, bool) {
	for _, j := range g.DataNeighbors(i) {
		if !present.Test(uint(g.D + j)) {
			continue
		}
		ok := true
		for _, k := range g.CheckNeighbors(j) {
			if k != i && !present.Test(uint(k)) {
				ok = false
				break
			}
		}
		if ok {
			return j, true
		}
	}
	return 0, false
}

func blockSlice(obj []byte, blockSize, pos int) []byte {
	return obj[pos*blockSize : (pos+1)*blockSize]
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
