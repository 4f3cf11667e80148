package core

import (
	"bytes"
	"testing"
)

func TestURIPackReadRoundTrip(t *testing.T) {
	hashes := make([]Hash, 6) // H0 + 5 blocks
	for i := range hashes {
		hashes[i] = HashBytes([]byte{byte(i)})
	}
	u := &URI{L: 12345, Hashes: hashes}

	var buf bytes.Buffer
	buf.Write(u.Pack())

	got, err := ReadURI(&buf)
	if err != nil {
		t.Fatalf("ReadURI: %v", err)
	}
	if got.L != u.L {
		t.Fatalf("L = %d, want %d", got.L, u.L)
	}
	if len(got.Hashes) != len(u.Hashes) {
		t.Fatalf("len(Hashes) = %d, want %d", len(got.Hashes), len(u.Hashes))
	}
	for i := range hashes {
		if got.Hashes[i] != hashes[i] {
			t.Fatalf("hash %d mismatch", i)
		}
	}
}

func TestReadURIRejectsMalformedLength(t *testing.T) {
	var buf bytes.Buffer
	// Declare a length that is not 4 + k*HashLen for any integer k >= 2.
	lenBuf := []byte{0, 0, 0, 0}
	lenBuf[0] = 5
	buf.Write(lenBuf)
	buf.Write(make([]byte, 5))

	if _, err := ReadURI(&buf); err != ErrMalformedURI {
		t.Fatalf("expected ErrMalformedURI, got %v", err)
	}
}

func TestReadURIRejectsSingleHash(t *testing.T) {
	u := &URI{L: 1, Hashes: []Hash{HashBytes([]byte("only"))}}
	var buf bytes.Buffer
	buf.Write(u.Pack())
	if _, err := ReadURI(&buf); err != ErrMalformedURI {
		t.Fatalf("expected ErrMalformedURI for k=1, got %v", err)
	}
}
