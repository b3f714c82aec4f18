package txhandler

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// Builder assembles a TxHandler one input/output at a time and
// freezes the layout on Finalize (spec.md §4.3: "finalize() freezes
// the layout"). Every graph-construction function in package txgraph
// goes through a Builder rather than poking at wire.MsgTx directly.
type Builder struct {
	txType TransactionType
	tx     *wire.MsgTx
	inputs []*SpendableTxIn
}

// NewBuilder starts a v3-topology, zero-locktime transaction of the
// given graph type.
func NewBuilder(txType TransactionType) *Builder {
	tx := wire.NewMsgTx(3)
	return &Builder{txType: txType, tx: tx}
}

// AddInput appends a spendable input and its expected signature slot,
// in order — input index == len(Inputs) before this call.
func (b *Builder) AddInput(sigKind SignatureKind, spendable *SpendableTxIn) *Builder {
	outPoint := wire.OutPoint{} // set by the caller via SetPrevOutPoint before Finalize
	b.tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outPoint, Sequence: spendable.Sequence})
	spendable.SigKind = sigKind
	b.inputs = append(b.inputs, spendable)
	return b
}

// SetPrevOutPoint fixes the outpoint of the input at inputIndex;
// split from AddInput so callers can build the SpendableTxIn (which
// needs the prevout's value/script, not its outpoint) independently of
// knowing the parent txid, which in this graph is frequently derived
// from another in-flight TxHandler.
func (b *Builder) SetPrevOutPoint(inputIndex int, outPoint wire.OutPoint) *Builder {
	b.tx.TxIn[inputIndex].PreviousOutPoint = outPoint
	return b
}

// AddOutput appends an output.
func (b *Builder) AddOutput(txOut *wire.TxOut) *Builder {
	b.tx.AddTxOut(txOut)
	return b
}

// Finalize freezes the input/output layout and returns the unsigned
// handler. requiredSigs lists every slot Checked() must see filled.
func (b *Builder) Finalize(requiredSigs []SignatureKind) (*TxHandler, error) {
	if len(b.inputs) == 0 {
		return nil, bridgeerrors.NewGraphBuildError("txhandler: %s has no inputs", b.txType.Name)
	}
	if len(b.tx.TxOut) == 0 {
		return nil, bridgeerrors.NewGraphBuildError("txhandler: %s has no outputs", b.txType.Name)
	}

	return &TxHandler{
		TxType:       b.txType,
		Tx:           b.tx,
		Inputs:       b.inputs,
		Sigs:         make(map[SignatureKind]SigSlot, len(requiredSigs)),
		requiredSigs: requiredSigs,
	}, nil
}
