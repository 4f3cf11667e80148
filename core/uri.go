package core

import (
	"encoding/binary"
	"io"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// URI is the self-certifying object descriptor (§3, §4.F): plaintext
// length, plaintext hash H0, then one hash per block in layout order
// (data blocks first, then check blocks). Block position is implicit in
// hash order; d and c are not carried on the wire — they're re-derived
// from L via the graph table on read.
type URI struct {
	L      int
	Hashes []Hash // [0]=H0 (plaintext), [1..d]=data blocks, [d+1..d+c]=check blocks
}

// H0 returns the plaintext hash.
func (u *URI) H0() Hash { return u.Hashes[0] }

// BlockHash returns the hash of block position pos (0-indexed over
// d+c), i.e. Hashes[1+pos].
func (u *URI) BlockHash(pos int) Hash { return u.Hashes[1+pos] }

// wireLen is the value carried in the 4-byte length prefix: 4 (the L
// field) plus one hash per entry.
func (u *URI) wireLen() uint32 {
	return uint32(4 + len(u.Hashes)*HashLen)
}

// Pack serializes the URI to its wire form (§4.E step 8, §4.F):
// 4-byte length prefix, 4-byte L, then the hashes in order. All integer
// fields are little-endian (§9, Open Question (c)).
func (u *URI) Pack() []byte {
	buf := make([]byte, 4+u.wireLen())
	binary.LittleEndian.PutUint32(buf[0:4], u.wireLen())
	binary.LittleEndian.PutUint32(buf[4:8], uint32(u.L))
	off := 8
	for _, h := range u.Hashes {
		copy(buf[off:off+HashLen], h[:])
		off += HashLen
	}
	return buf
}

// ReadURI parses a URI from r (§4.E request step 1-2). It validates that
// the declared length is 4 + k·|hash| for some k ≥ 2 before trusting any
// of the hash data; any violation is ErrMalformedURI (§9, Open Question
// (b)) rather than a short read further down the line.
func ReadURI(r io.Reader) (*URI, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, ErrClientIO
	}
	wireLen := binary.LittleEndian.Uint32(lenBuf[:])
	if wireLen < 4+2*HashLen || (wireLen-4)%HashLen != 0 {
		zap.L().Sugar().Warnw("malformed uri length prefix", "wireLen", wireLen)
		return nil, ErrMalformedURI
	}
	k := int(wireLen-4) / HashLen

	body := make([]byte, wireLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrClientIO
	}

	l := int(binary.LittleEndian.Uint32(body[0:4]))
	hashes := make([]Hash, k)
	off := 4
	for i := range hashes {
		copy(hashes[i][:], body[off:off+HashLen])
		off += HashLen
	}
	return &URI{L: l, Hashes: hashes}, nil
}

// String renders H0 as a CIDv1/raw multihash string for operator-facing
// logs — the wire format above is always the raw binary layout the fleet
// actually exchanges.
func (u *URI) String() string {
	digest, err := mh.Encode(u.Hashes[0][:], mh.KECCAK_256)
	if err != nil {
		return u.Hashes[0].String()
	}
	return cid.NewCidV1(cid.Raw, digest).String()
}
