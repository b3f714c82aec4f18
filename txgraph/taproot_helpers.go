package txgraph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
)

// keyOnlyOutput builds a pure key-path taproot output (no alternate
// script leaves): used for the plain CheckSig(operator)/CheckSig(nofn)
// outputs that recur across the graph.
func keyOnlyOutput(pk *btcec.PublicKey, amount int64) (*wire.TxOut, error) {
	outputKey := txscript.ComputeTaprootOutputKey(pk, nil)
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, err
	}
	return &wire.TxOut{Value: amount, PkScript: pkScript}, nil
}

// scriptTreeOutput assembles a taproot tree from leaves under
// internalKey and returns its output plus the spend info a later
// spender needs for its control block.
func scriptTreeOutput(internalKey *btcec.PublicKey, leaves []script.Leaf, amount int64) (*wire.TxOut, *txhandler.TapscriptSpendInfo, error) {
	info, err := txhandler.BuildSpendInfo(internalKey, leaves)
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := info.OutputScript()
	if err != nil {
		return nil, nil, err
	}

	return &wire.TxOut{Value: amount, PkScript: pkScript}, info, nil
}

// anchorOutput is the literal ephemeral P2A output every zero-fee graph
// transaction carries (spec.md §6).
func anchorOutput(amountSats int64) *wire.TxOut {
	return &wire.TxOut{Value: amountSats, PkScript: script.Anchor}
}

// rawOutput pays to a caller-assembled scriptPubKey directly, for the
// rare payout (OperatorData.ReimburseAddress) that isn't this package's
// own CheckSig(operator) key-path output.
func rawOutput(pkScript []byte, amountSats int64) *wire.TxOut {
	return &wire.TxOut{Value: amountSats, PkScript: pkScript}
}

// operatorOrTimeoutLeaves is the connector shape that recurs across
// the graph (challenge, finalizer, watchtower-challenge-kickoff
// connectors): the operator can spend it directly, or anyone can burn
// it to a housekeeping path once a relative timelock matures.
func operatorOrTimeoutLeaves(operatorPK *btcec.PublicKey, timeoutBlocks uint32) []script.Leaf {
	return []script.Leaf{
		script.NewCheckSig(operatorPK),
		script.NewTimelock(nil, timeoutBlocks),
	}
}
