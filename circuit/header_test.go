package circuit

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHashFromHex(t *testing.T, s string) Hash256 {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, b, 32)

	var h Hash256
	copy(h[:], b)
	return h
}

// TestGenesisHash is scenario S1 from spec.md §8.
func TestGenesisHash(t *testing.T) {
	h := &CircuitBlockHeader{
		Version:       1,
		PrevBlockHash: Hash256{},
		MerkleRoot:    mustHashFromHex(t, "3ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a"),
		Time:          1231006505,
		Bits:          0x1D00FFFF,
		Nonce:         2083236893,
	}

	// The header hashes to the mainnet genesis block hash (in the
	// little-endian byte order Hash returns), and its serialization
	// round trips.
	require.Equal(t, mustHashFromHex(t, "6fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000"), h.Hash())

	parsed, err := ParseCircuitBlockHeader(h.Serialize())
	require.NoError(t, err)
	require.Equal(t, h.Hash(), parsed.Hash())
}

// TestHeaderRoundtrip is property 1 from spec.md §8.
func TestHeaderRoundtrip(t *testing.T) {
	h := &CircuitBlockHeader{
		Version:       536870912,
		PrevBlockHash: mustHashFromHex(t, "0000000000000000000293ca9f8346a0a3d76e8df3ff1b8a5e1f8e3d8e8e8e8e"),
		MerkleRoot:    mustHashFromHex(t, "111111111111111111111111111111111111111111111111111111111111111a"),
		Time:          1700000000,
		Bits:          0x1702f128,
		Nonce:         123456,
	}

	serialized := h.Serialize()
	require.Len(t, serialized, 80)

	parsed, err := ParseCircuitBlockHeader(serialized)
	require.NoError(t, err)
	require.Equal(t, *h, *parsed)
	require.Equal(t, h.Hash(), parsed.Hash())
}

func TestParseCircuitBlockHeaderRejectsWrongLength(t *testing.T) {
	_, err := ParseCircuitBlockHeader(make([]byte, 79))
	require.Error(t, err)
}

// TestHashValidityMonotonicity is property 3 from spec.md §8.
func TestHashValidityMonotonicity(t *testing.T) {
	h := &CircuitBlockHeader{Bits: 0x1D00FFFF, Nonce: 1}
	hash := h.Hash()

	targetA := ToBE32(BitsToTarget(0x1702f128))
	targetB := ToBE32(BitsToTarget(0x1D00FFFF))

	if hash.LessOrEqualTarget(targetA) {
		require.True(t, hash.LessOrEqualTarget(targetB))
	}
}
