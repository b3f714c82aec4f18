package txgraph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
)

// connectorSpend describes one input spending a single leaf of a
// taproot connector output the graph already built elsewhere (a
// Round's kickoff connector, a Kickoff's challenge/assert/ack/
// finalizer/disprove connector).
type connectorSpend struct {
	Outpoint    wire.OutPoint
	InternalKey *btcec.PublicKey
	Leaves      []script.Leaf
	LeafIndex   int
	AmountSats  int64
	SigKind     txhandler.SignatureKind
	Sequence    uint32
}

// buildFromConnector is the shared shape every housekeeping/challenge/
// assert/disprove transaction below goes through: one connector-leaf
// input, caller-supplied outputs, and the resulting handler's required
// signature slots.
func buildFromConnector(txType txhandler.TransactionType, in connectorSpend, outputs []*wire.TxOut, requiredSigs []txhandler.SignatureKind) (*txhandler.TxHandler, error) {
	prevout := &wire.TxOut{Value: in.AmountSats}
	spendable, err := txhandler.NewScriptPathSpendable(prevout, in.InternalKey, in.Leaves, in.LeafIndex, in.SigKind, in.Sequence)
	if err != nil {
		return nil, err
	}

	b := txhandler.NewBuilder(txType)
	b.AddInput(in.SigKind, spendable)
	b.SetPrevOutPoint(0, in.Outpoint)
	for _, out := range outputs {
		b.AddOutput(out)
	}

	return b.Finalize(requiredSigs)
}
