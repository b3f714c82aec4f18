// Package circuit implements the pure, zk-VM-guest half of the header
// chain verification logic (spec.md §4.1/§4.2, component C1/C2-guest).
// Nothing in this package performs I/O, takes a context, or can block:
// it is meant to compile unmodified into a proving guest.
package circuit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// Hash256 is a double-SHA256 digest, little-endian as Bitcoin stores it
// on the wire (the byte order a guest never needs to reverse except
// when comparing against a big-endian target).
type Hash256 [32]byte

func sha256d(b []byte) Hash256 {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second
}

// CircuitBlockHeader is the 80-byte consensus header, spec.md §3.
type CircuitBlockHeader struct {
	Version        int32
	PrevBlockHash  Hash256
	MerkleRoot     Hash256
	Time           uint32
	Bits           uint32
	Nonce          uint32
}

// Serialize writes the consensus wire encoding: all ints little-endian,
// hashes raw (already stored little-endian).
func (h *CircuitBlockHeader) Serialize() []byte {
	buf := make([]byte, 0, 80)
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], uint32(h.Version))
	buf = append(buf, tmp[:]...)
	buf = append(buf, h.PrevBlockHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.Time)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.Bits)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.Nonce)
	buf = append(buf, tmp[:]...)

	return buf
}

// ParseCircuitBlockHeader is the inverse of Serialize; used by property
// test 1 (header roundtrip) and by callers building headers from raw
// bytes fetched off an indexer.
func ParseCircuitBlockHeader(b []byte) (*CircuitBlockHeader, error) {
	if len(b) != 80 {
		return nil, bridgeerrors.NewConsensusError("block header must be exactly 80 bytes, got %d", len(b))
	}

	h := &CircuitBlockHeader{}
	h.Version = int32(binary.LittleEndian.Uint32(b[0:4]))
	copy(h.PrevBlockHash[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	h.Time = binary.LittleEndian.Uint32(b[68:72])
	h.Bits = binary.LittleEndian.Uint32(b[72:76])
	h.Nonce = binary.LittleEndian.Uint32(b[76:80])

	return h, nil
}

// Hash is the block hash: double-SHA256 of the 80-byte serialization,
// stored little-endian the way Bitcoin stores and compares hashes.
func (h *CircuitBlockHeader) Hash() Hash256 {
	return sha256d(h.Serialize())
}

// reversed returns the hash in big-endian order, for target comparison.
func (h Hash256) reversed() Hash256 {
	var out Hash256
	for i := 0; i < 32; i++ {
		out[i] = h[31-i]
	}
	return out
}

// LessOrEqualTarget implements "check_hash_valid": lexicographic
// big-endian compare of the reversed hash against a big-endian target,
// scanning from the most significant byte and returning on the first
// differing byte (spec.md §4.1).
func (h Hash256) LessOrEqualTarget(target [32]byte) bool {
	rev := h.reversed()
	return bytes.Compare(rev[:], target[:]) <= 0
}
