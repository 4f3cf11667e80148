// Package core implements the block-layer engine: the hash-routed ring,
// the erasure codec, the concurrent fan-out transfer engine, the
// insert/request orchestrator and the self-certifying URI codec.
package core

import (
	"encoding/hex"
	"net"

	"github.com/ethereum/go-ethereum/crypto"
)

// HashLen is |hash|, the fixed digest length used throughout the wire
// format (Keccak256, the teacher's hash primitive of choice).
const HashLen = 32

// Hash is a fixed-length content digest.
type Hash [HashLen]byte

// String renders the digest as a hex string for logs.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero digest (an unset slot).
func (h Hash) IsZero() bool { return h == Hash{} }

// HashBytes hashes data with the proxy's external hash collaborator
// (§6): Keccak256, matching the primitive already pulled in by the
// teacher's ledger and replication code.
func HashBytes(data []byte) Hash {
	return Hash(crypto.Keccak256Hash(data))
}

// NodeAddr is a server address as carried on the wire: 4 bytes, matching
// §6 (an IPv4 address with its octets in dotted-quad order, the format
// the membership collaborator and the fleet protocol agree on).
type NodeAddr [4]byte

// String renders the address in dotted-quad form.
func (a NodeAddr) String() string {
	return net.IP(a[:]).String()
}

// ParseNodeAddr packs a dotted-quad (or any net-parseable IPv4) address
// into the wire representation.
func ParseNodeAddr(s string) (NodeAddr, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return NodeAddr{}, false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return NodeAddr{}, false
	}
	var a NodeAddr
	copy(a[:], ip4)
	return a, true
}
