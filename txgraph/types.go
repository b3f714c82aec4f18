// Package txgraph deterministically assembles the fixed transaction
// graph a single kickoff attempt needs (spec.md §4.5, component C5):
// MoveToVault, the operator's Round/ReadyToReimburse collateral chain,
// Kickoff and its watchtower-challenge/assert/disprove/reimburse
// descendants, and the housekeeping paths that collapse unused
// connectors.
package txgraph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// DepositData is immutable once a deposit is accepted (spec.md §3).
type DepositData struct {
	DepositOutpoint      wire.OutPoint
	EvmRecipient         [20]byte
	UserRecoveryXOnlyPK  *btcec.PublicKey
	UserRecoveryTimelock uint32
	AggregatedNofNPK     *btcec.PublicKey
	AmountSats           uint64
}

// OperatorData describes one operator bonded into the round chain.
type OperatorData struct {
	XOnlyPK             *btcec.PublicKey
	ReimburseAddress    []byte // scriptPubKey the operator is repaid to
	CollateralOutpoint  wire.OutPoint
	CollateralAmountSat uint64
}

// KickoffId identifies one kickoff attempt.
type KickoffId struct {
	OperatorXOnlyPK *btcec.PublicKey
	RoundIdx        uint32
	KickoffIdx      uint32
}

// DepositTxid commits the deposit identity into Winternitz derivation
// paths; callers pass DepositData.DepositOutpoint.Hash.
func (d DepositData) DepositTxid() [32]byte {
	return [32]byte(d.DepositOutpoint.Hash)
}
