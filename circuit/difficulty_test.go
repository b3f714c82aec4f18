package circuit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTargetCodecRoundtrip is scenario S2 / property 2 from spec.md §8.
func TestTargetCodecRoundtrip(t *testing.T) {
	cases := []uint32{0x1702f128, 0x1D00FFFF, 0x207FFFFF, 0x1E0377AE, 0x1903a30c}

	for _, bits := range cases {
		target := BitsToTarget(bits)
		require.Equal(t, bits, TargetToBits(target), "roundtrip failed for bits %08x", bits)
	}
}

func TestBitsToTargetKnownValue(t *testing.T) {
	target := BitsToTarget(0x1702f128)
	expected, ok := new(big.Int).SetString("00000000000000000002f1280000000000000000000000000000000000000000", 16)
	require.True(t, ok)
	require.Equal(t, 0, target.Cmp(expected))
}

// TestRetargetClampedUnchanged is scenario S6 from spec.md §8: the
// first mainnet epoch took 2,055,491 s, inside the [expected/4,
// expected*4] clamp range but longer than the expected 1,209,600 s, so
// the scaled target exceeds max_target and is capped at it; since the
// old target already was max_target, the bits are unchanged.
func TestRetargetClampedUnchanged(t *testing.T) {
	epochStart := uint32(1231006505)
	lastTime := uint32(1233061996)
	oldBits := uint32(0x1D00FFFF)
	maxTarget := BitsToTarget(0x1D00FFFF)

	newTarget := CalculateNewDifficulty(epochStart, lastTime, oldBits, 1209600, maxTarget)

	require.Equal(t, oldBits, TargetToBits(newTarget))
}

func TestWorkForTargetIsPositiveAndMonotonic(t *testing.T) {
	easy := BitsToTarget(0x1D00FFFF)  // low difficulty, high target
	hard := BitsToTarget(0x1702f128) // high difficulty, low target

	workEasy := WorkForTarget(easy)
	workHard := WorkForTarget(hard)

	require.Equal(t, 1, workEasy.Sign(), "work must be positive")
	require.Equal(t, 1, workHard.Cmp(workEasy), "a smaller target must yield more work")
}
