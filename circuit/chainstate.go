package circuit

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/bridge-node/vault-bridge/chaincfg"
)

// UninitializedHeight is the sentinel block_height value a ChainState
// starts at; the first successfully applied header wraps it to 0
// (spec.md §3, §9 Design Note — never treat this as a real height).
const UninitializedHeight = ^uint32(0)

// ChainState is the verifiable summary of the chain after N headers
// (spec.md §3).
type ChainState struct {
	BlockHeight       uint32                        `json:"block_height"`
	TotalWork         [32]byte                      `json:"total_work"`
	BestBlockHash     Hash256                       `json:"best_block_hash"`
	CurrentTargetBits uint32                         `json:"current_target_bits"`
	EpochStartTime    uint32                         `json:"epoch_start_time"`
	Prev11Timestamps  [chaincfg.MedianTimeSpan]uint32 `json:"prev_11_timestamps"`
	BlockHashesMMR    MMRGuest                       `json:"block_hashes_mmr"`
}

// Genesis builds the ChainState a proof chain starts from for the given
// network: height uninitialized, zero work, zero best-hash, the
// network's maximum (easiest) target MaxBits in force, and an empty MMR. This is
// not specified verbatim in spec.md (it only says ChainState's "Genesis"
// variant carries a ChainState), but a prover needs a concrete value to
// start from, so this repo supplies the per-network default.
func Genesis(p chaincfg.ProtocolParamset) ChainState {
	return ChainState{
		BlockHeight:       UninitializedHeight,
		CurrentTargetBits: p.MaxBits,
	}
}

// ToHash is the deterministic SHA256 commitment to a ChainState
// (spec.md §6): ints little-endian, fixed arrays raw, the MMR peaks
// concatenated followed by its size.
func (s *ChainState) ToHash() Hash256 {
	h := sha256.New()

	var u32 [4]byte

	binary.LittleEndian.PutUint32(u32[:], s.BlockHeight)
	h.Write(u32[:])

	h.Write(s.TotalWork[:])
	h.Write(s.BestBlockHash[:])

	binary.LittleEndian.PutUint32(u32[:], s.CurrentTargetBits)
	h.Write(u32[:])

	binary.LittleEndian.PutUint32(u32[:], s.EpochStartTime)
	h.Write(u32[:])

	for _, ts := range s.Prev11Timestamps {
		binary.LittleEndian.PutUint32(u32[:], ts)
		h.Write(u32[:])
	}

	for _, peak := range s.BlockHashesMMR.Subroots {
		h.Write(peak[:])
	}

	binary.LittleEndian.PutUint32(u32[:], s.BlockHashesMMR.Size)
	h.Write(u32[:])

	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}

// totalWorkBigInt/setTotalWork are small helpers so Run doesn't sprinkle
// FromBE32/ToBE32 calls inline.
func (s *ChainState) totalWorkBigInt() *big.Int {
	return FromBE32(s.TotalWork)
}

func (s *ChainState) setTotalWork(v *big.Int) {
	s.TotalWork = ToBE32(v)
}
