package circuit

import "math/big"

// maxUint256Plus1 is 2^256, used to implement the wrapping 256-bit
// arithmetic spec.md §4.1 calls for (total_work accumulation, the
// retarget product/quotient).
var maxUint256Plus1 = new(big.Int).Lsh(big.NewInt(1), 256)

func wrap256(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, maxUint256Plus1)
}

// BitsToTarget decodes the compact ("nBits") difficulty encoding into a
// 256-bit target (spec.md §4.1 point 3).
func BitsToTarget(bits uint32) *big.Int {
	size := bits >> 24
	mantissa := big.NewInt(int64(bits & 0x00FFFFFF))

	target := new(big.Int)
	switch {
	case size <= 3:
		target.Rsh(mantissa, uint(8*(3-size)))
	default:
		target.Lsh(mantissa, uint(8*(size-3)))
	}

	return target
}

// TargetToBits is the inverse of BitsToTarget: the compact re-encoding
// of a 256-bit target, used both to round-trip difficulty and to emit
// current_target_bits after a retarget.
func TargetToBits(target *big.Int) uint32 {
	if target.Sign() == 0 {
		return 0
	}

	// size is the number of bytes needed to represent target with its
	// sign bit (bit 0x00800000 of the mantissa) clear.
	bitLen := target.BitLen()
	size := uint((bitLen + 7) / 8)

	var mantissa *big.Int
	if size <= 3 {
		mantissa = new(big.Int).Lsh(target, 8*(3-size))
	} else {
		mantissa = new(big.Int).Rsh(target, 8*(size-3))
	}

	// If the high bit of the mantissa's top byte is set, the encoding
	// would be mistaken for a negative number; shift down one byte and
	// bump the size, per the standard compact-number convention.
	if mantissa.Bit(23) == 1 {
		mantissa.Rsh(mantissa, 8)
		size++
	}

	return uint32(size)<<24 | uint32(mantissa.Uint64())
}

// ToBE32 renders a target/work value as a big-endian 32-byte array, the
// storage form ChainState keeps it in.
func ToBE32(x *big.Int) [32]byte {
	var out [32]byte
	wrapped := wrap256(x)
	b := wrapped.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// FromBE32 is the inverse of ToBE32.
func FromBE32(b [32]byte) *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// WorkForTarget computes the per-block work contribution
// floor(2^256 / (target + 1)) (spec.md §4.1).
func WorkForTarget(target *big.Int) *big.Int {
	denom := new(big.Int).Add(target, bigOne)
	work := new(big.Int).Div(maxUint256Plus1, denom)
	return work
}

var bigOne = big.NewInt(1)

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CalculateNewDifficulty implements the epoch retarget formula from
// spec.md §4.1: clamp the actual timespan to [expected/4, expected*4],
// then new_target = min(old_target * actual/expected, max_target), with
// 256-bit wrapping multiplication/division.
func CalculateNewDifficulty(epochStartTime, lastBlockTime uint32, oldBits uint32, expectedTimespanSeconds uint32, maxTarget *big.Int) *big.Int {
	actualTimespan := int64(lastBlockTime) - int64(epochStartTime)
	expected := int64(expectedTimespanSeconds)

	actualTimespan = clamp(actualTimespan, expected/4, expected*4)

	oldTarget := BitsToTarget(oldBits)

	newTarget := wrap256(new(big.Int).Div(
		wrap256(new(big.Int).Mul(oldTarget, big.NewInt(actualTimespan))),
		big.NewInt(expected),
	))

	if newTarget.Cmp(maxTarget) > 0 {
		return new(big.Int).Set(maxTarget)
	}

	return newTarget
}
