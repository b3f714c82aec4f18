// Package bridgeparams carries the protocol-level constants the
// transaction graph is parametric over (spec.md §4.5/§6: "protocol-
// configured" anchor value, per-round kickoff count, timelocks). These
// are distinct from chaincfg.ProtocolParamset, which only governs
// header-chain consensus (C1/C2); a bridge deployment picks one of
// each independently, the way the teacher keeps its own chain params
// and service config as separate layers.
package bridgeparams

import "github.com/bridge-node/vault-bridge/chaincfg"

// BridgeParamset is the runtime value every txgraph construction
// function takes.
type BridgeParamset struct {
	Network chaincfg.Network

	NumKickoffsPerRound uint32
	NumWatchtowers      uint32
	NumAssertSteps      uint32

	// Timelocks are expressed in BIP68 relative blocks throughout this
	// repo; a deployment wanting wall-clock timelocks converts at the
	// edge (BIP68's time-based flag is out of scope here, per spec.md's
	// Non-goals on CLI/config plumbing beyond paramset selection).
	KickoffConnectorTimelockBlocks uint32
	OperatorReimburseTimelockBlocks uint32
	AssertTimeoutTimelockBlocks     uint32
	DisproveTimeoutTimelockBlocks   uint32

	WatchtowerChallengeMessageLengthBytes int

	// AnchorAmountSats is the ephemeral P2A output's value.
	AnchorAmountSats int64
}

// DefaultMainnet is a representative production paramset: ~1 day
// operator reimburse window, ~1 week assert/disprove timeouts.
func DefaultMainnet() BridgeParamset {
	return BridgeParamset{
		Network:                                chaincfg.Mainnet,
		NumKickoffsPerRound:                    10,
		NumWatchtowers:                          5,
		NumAssertSteps:                          32,
		KickoffConnectorTimelockBlocks:          1,
		OperatorReimburseTimelockBlocks:         144, // ~1 day
		AssertTimeoutTimelockBlocks:             1008, // ~1 week
		DisproveTimeoutTimelockBlocks:           1008,
		WatchtowerChallengeMessageLengthBytes:   32,
		AnchorAmountSats:                        240,
	}
}

// DefaultRegtest scales every timelock down so integration tests don't
// need to mine thousands of blocks.
func DefaultRegtest() BridgeParamset {
	p := DefaultMainnet()
	p.Network = chaincfg.Regtest
	p.KickoffConnectorTimelockBlocks = 1
	p.OperatorReimburseTimelockBlocks = 2
	p.AssertTimeoutTimelockBlocks = 2
	p.DisproveTimeoutTimelockBlocks = 2
	return p
}
