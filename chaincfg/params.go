// Package chaincfg carries the network-parametric constants consensus
// code needs (spec.md §6), the way the teacher's pkg/go-chaincfg/params.go
// carries btcsuite-style Params — except here it is a runtime value
// threaded through context rather than a build-time global, per the
// Design Note in spec.md §9 ("prefer a runtime ProtocolParamset passed
// through context; keep the constants available for const-friendly
// contexts").
package chaincfg

import "github.com/bridge-node/vault-bridge/bridgeerrors"

// Network identifies one of the four networks this repo ever runs
// against. Unlike the teacher's chaincfg.Params, which is keyed by
// wire.BitcoinNet magic bytes (irrelevant here: this repo never speaks
// the P2P wire protocol), the network is a build/config-time label read
// from BITCOIN_NETWORK.
type Network string

const (
	Mainnet  Network = "mainnet"
	Testnet4 Network = "testnet4"
	Signet   Network = "signet"
	Regtest  Network = "regtest"
)

// Const-friendly values usable outside a ProtocolParamset (ring buffer
// sizes, block-hash commitment length): these never vary by network.
const (
	// MedianTimeSpan is the number of trailing timestamps MTP is computed over.
	MedianTimeSpan = 11

	// DifficultyAdjustmentInterval is the number of blocks per retarget epoch.
	DifficultyAdjustmentInterval = 2016

	// BlockHashCommitLen is the length in bytes of a committed block
	// hash. It is not the MMR leaf width: MMR leaves are full 32-byte
	// block hashes.
	BlockHashCommitLen = 40

	// MinimumWorkTestnet is the fixed work contribution of a testnet4
	// 20-minute-exception header, in lieu of its nominal (max-target)
	// proof-of-work value.
	MinimumWorkTestnet = uint64(1 << 20)

	// Testnet4ExceptionGapSeconds is the time gap (in seconds) after which
	// testnet4 permits the 20-minute low-difficulty exception.
	Testnet4ExceptionGapSeconds = 20 * 60
)

// ProtocolParamset is the runtime form of the table in spec.md §6.
type ProtocolParamset struct {
	Network Network

	// MaxBits is the compact-encoded proof-of-work floor for the network
	// (the easiest allowed target).
	MaxBits uint32

	// ExpectedEpochTimespanSeconds is the expected wall-clock duration of
	// one DifficultyAdjustmentInterval-block epoch. Zero means "no
	// retargeting" (regtest).
	ExpectedEpochTimespanSeconds uint32

	// BlockHashCommitLen mirrors the package const, carried per-paramset
	// so callers needn't reach for the global.
	BlockHashCommitLen int

	// SkipDifficultyValidation is set for regtest, where every header
	// must simply present MaxBits.
	SkipDifficultyValidation bool

	// Testnet4TwentyMinuteException enables the testnet4-only low
	// difficulty grace period.
	Testnet4TwentyMinuteException bool
}

var paramsets = map[Network]ProtocolParamset{
	Mainnet: {
		Network:                      Mainnet,
		MaxBits:                      0x1D00FFFF,
		ExpectedEpochTimespanSeconds: 60 * 60 * 24 * 14,
		BlockHashCommitLen:           BlockHashCommitLen,
	},
	Testnet4: {
		Network:                       Testnet4,
		MaxBits:                       0x1D00FFFF,
		ExpectedEpochTimespanSeconds:  60 * 60 * 24 * 14,
		BlockHashCommitLen:            BlockHashCommitLen,
		Testnet4TwentyMinuteException: true,
	},
	Signet: {
		Network:                      Signet,
		MaxBits:                      0x1E0377AE,
		ExpectedEpochTimespanSeconds: 60 * 24 * 14,
		BlockHashCommitLen:           BlockHashCommitLen,
	},
	Regtest: {
		Network:                  Regtest,
		MaxBits:                  0x207FFFFF,
		BlockHashCommitLen:       BlockHashCommitLen,
		SkipDifficultyValidation: true,
	},
}

// ParamsetFromNetwork resolves the BITCOIN_NETWORK value to a
// ProtocolParamset, the way the teacher resolves a chaincfg.Params from
// a --testnet/--regtest style flag. An empty string defaults to
// mainnet; any other unrecognized value is fatal (spec.md §6).
func ParamsetFromNetwork(network string) (ProtocolParamset, error) {
	if network == "" {
		network = string(Mainnet)
	}

	p, ok := paramsets[Network(network)]
	if !ok {
		return ProtocolParamset{}, bridgeerrors.NewConfigurationError(
			"unrecognized BITCOIN_NETWORK %q, expected one of mainnet, testnet4, signet, regtest", network)
	}

	return p, nil
}
