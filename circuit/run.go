package circuit

import (
	"math/big"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/chaincfg"
)

// MethodID identifies the exact circuit binary a proof was produced
// against (spec.md §3).
type MethodID [8]uint32

// PrevProofKind discriminates the two shapes a proof's predecessor can
// take: a plain starting ChainState, or a prior proof's succinct
// output. This is the tagged union spec.md §9's Design Note calls for
// ("a sum type, not inheritance").
type PrevProofKind int

const (
	PrevProofGenesis PrevProofKind = iota
	PrevProofRecursive
)

// PrevProof is the Genesis(ChainState) | PrevProof(CircuitOutput) union.
type PrevProof struct {
	Kind         PrevProofKind
	GenesisState ChainState
	PrevOutput   *CircuitOutput
}

// CircuitInput is the full input to one circuit invocation (spec.md §3).
// Paramset is this repo's addition (spec.md §9 Design Note): the
// original treats network selection as a build-time constant; here it
// is threaded in explicitly since Run takes no context.
type CircuitInput struct {
	MethodID     MethodID
	PrevProof    PrevProof
	BlockHeaders []CircuitBlockHeader
	Paramset     chaincfg.ProtocolParamset
}

// CircuitOutput is the succinct output a recursive step consumes or a
// BitVM disprove game's public input embeds (spec.md §3).
type CircuitOutput struct {
	MethodID         MethodID
	GenesisStateHash Hash256
	ChainState       ChainState
}

// Run is the circuit's entire contract: pure, deterministic, and fatal
// on the first consensus violation — no partial state is ever returned
// (spec.md §4.1, §7).
func Run(input CircuitInput) (*CircuitOutput, error) {
	var state ChainState
	var genesisHash Hash256

	switch input.PrevProof.Kind {
	case PrevProofGenesis:
		state = input.PrevProof.GenesisState
		genesisHash = state.ToHash()
	case PrevProofRecursive:
		prev := input.PrevProof.PrevOutput
		if prev == nil {
			return nil, bridgeerrors.NewConsensusError("recursive prev_proof missing its output")
		}
		if prev.MethodID != input.MethodID {
			return nil, bridgeerrors.NewConsensusError("method id mismatch between prev_proof and input")
		}
		state = prev.ChainState
		genesisHash = prev.GenesisStateHash
	default:
		return nil, bridgeerrors.NewConsensusError("unknown prev_proof kind %d", input.PrevProof.Kind)
	}

	for i := range input.BlockHeaders {
		if err := applyHeader(&state, &input.BlockHeaders[i], input.Paramset); err != nil {
			return nil, err
		}
	}

	return &CircuitOutput{
		MethodID:         input.MethodID,
		GenesisStateHash: genesisHash,
		ChainState:       state,
	}, nil
}

// applyHeader mutates state in place by validating and absorbing one
// header, per the ordered steps in spec.md §4.1 point 2. BlockHeight is
// incremented before the checks; every other field is written only
// after all checks passed. No partial update survives a rejected
// header, because Run returns no state on error and its local copy is
// simply discarded.
func applyHeader(state *ChainState, header *CircuitBlockHeader, p chaincfg.ProtocolParamset) error {
	state.BlockHeight++

	candidateHash := header.Hash()

	if header.PrevBlockHash != state.BestBlockHash {
		return bridgeerrors.NewConsensusError("previous block hash mismatch at height %d", state.BlockHeight)
	}

	requiredBits, workOverride, err := resolveDifficulty(state, header, p)
	if err != nil {
		return err
	}

	if header.Bits != requiredBits {
		return bridgeerrors.NewConsensusError("bits mismatch at height %d: got %08x want %08x", state.BlockHeight, header.Bits, requiredBits)
	}

	target := BitsToTarget(header.Bits)
	if !candidateHash.LessOrEqualTarget(ToBE32(target)) {
		return bridgeerrors.NewConsensusError("proof of work invalid at height %d", state.BlockHeight)
	}

	if !validateTimestamp(header.Time, state.Prev11Timestamps) {
		return bridgeerrors.NewConsensusError("timestamp not greater than median-time-past at height %d", state.BlockHeight)
	}

	state.BlockHashesMMR.Append(candidateHash)
	state.BestBlockHash = candidateHash

	var work *big.Int
	if workOverride != nil {
		work = workOverride
	} else {
		work = WorkForTarget(target)
	}
	state.setTotalWork(new(big.Int).Add(state.totalWorkBigInt(), work))

	state.Prev11Timestamps[state.BlockHeight%chaincfg.MedianTimeSpan] = header.Time

	if !p.SkipDifficultyValidation {
		if state.BlockHeight%chaincfg.DifficultyAdjustmentInterval == 0 {
			state.EpochStartTime = header.Time
		}

		if state.BlockHeight%chaincfg.DifficultyAdjustmentInterval == chaincfg.DifficultyAdjustmentInterval-1 {
			maxTarget := BitsToTarget(p.MaxBits)
			newTarget := CalculateNewDifficulty(state.EpochStartTime, header.Time, state.CurrentTargetBits, p.ExpectedEpochTimespanSeconds, maxTarget)
			state.CurrentTargetBits = TargetToBits(newTarget)
		}
	}

	return nil
}

// resolveDifficulty returns the bits this header must present, and, for
// the testnet4 20-minute exception, the fixed work contribution to use
// instead of WorkForTarget (spec.md §4.1, §9 — preserve the asymmetry
// that the exception is skipped exactly on epoch boundaries).
func resolveDifficulty(state *ChainState, header *CircuitBlockHeader, p chaincfg.ProtocolParamset) (uint32, *big.Int, error) {
	if p.SkipDifficultyValidation {
		return p.MaxBits, nil, nil
	}

	if p.Testnet4TwentyMinuteException {
		isEpochBoundary := state.BlockHeight%chaincfg.DifficultyAdjustmentInterval == 0
		lastBlockTime := state.Prev11Timestamps[(state.BlockHeight-1)%chaincfg.MedianTimeSpan]

		if !isEpochBoundary && header.Time > lastBlockTime+chaincfg.Testnet4ExceptionGapSeconds {
			work := new(big.Int).SetUint64(chaincfg.MinimumWorkTestnet)
			return p.MaxBits, work, nil
		}

		return state.CurrentTargetBits, nil, nil
	}

	return state.CurrentTargetBits, nil, nil
}

// validateTimestamp is property 6 from spec.md §8: header.time must
// exceed the median of the last 11 timestamps.
func validateTimestamp(t uint32, prev11 [chaincfg.MedianTimeSpan]uint32) bool {
	return t > medianOf11(prev11)
}

func medianOf11(ts [chaincfg.MedianTimeSpan]uint32) uint32 {
	sorted := ts
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}
