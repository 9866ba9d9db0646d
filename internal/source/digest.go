package source

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Digest is a BLAKE3-256 content hash.
type Digest [32]byte

// Sum hashes b.
func Sum(b []byte) Digest {
	return Digest(blake3.Sum256(b))
}

// Combine hashes parts with length prefixes, so ("ab","c") and ("a","bc")
// produce different digests.
func Combine(parts ...[]byte) Digest {
	h := blake3.New(32, nil)
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short returns the first n hex characters.
func (d Digest) Short(n int) string {
	s := d.String()
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}

func (d Digest) IsZero() bool { return d == Digest{} }
