package txgraph

import (
	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
)

// depositLeaves is the two-leaf tree the deposit output itself, and
// MoveToVault's single input, are both built under: the user can
// reclaim after UserRecoveryTimelock, or the N-of-N can move the funds
// into the vault at any time.
func depositLeaves(deposit DepositData) []script.Leaf {
	return []script.Leaf{
		script.NewTimelock(deposit.UserRecoveryXOnlyPK, deposit.UserRecoveryTimelock),
		script.NewCheckSig(deposit.AggregatedNofNPK),
	}
}

const nofnLeafIndex = 1

// BuildMoveToVault spends the user's deposit output via the N-of-N
// leaf and re-outputs it under a plain CheckSig(nofn) key-path output
// plus the anchor (spec.md §4.5: "MoveToVault: N-of-N moves the
// deposit into a single vault output").
func BuildMoveToVault(deposit DepositData, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	leaves := depositLeaves(deposit)
	prevout, _, err := scriptTreeOutput(deposit.AggregatedNofNPK, leaves, int64(deposit.AmountSats))
	if err != nil {
		return nil, err
	}

	spendable, err := txhandler.NewScriptPathSpendable(prevout, deposit.AggregatedNofNPK, leaves, nofnLeafIndex, txhandler.NormalSig("nofn"), 0)
	if err != nil {
		return nil, err
	}

	vaultOut, err := keyOnlyOutput(deposit.AggregatedNofNPK, int64(deposit.AmountSats)-params.AnchorAmountSats)
	if err != nil {
		return nil, err
	}

	b := txhandler.NewBuilder(txhandler.TypeMoveToVault)
	b.AddInput(txhandler.NormalSig("nofn"), spendable)
	b.SetPrevOutPoint(0, deposit.DepositOutpoint)
	b.AddOutput(vaultOut)
	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	return b.Finalize([]txhandler.SignatureKind{txhandler.NormalSig("nofn")})
}

// DepositOutputScript is a convenience for callers building the on-chain
// deposit output itself (not a graph transaction, but the thing
// MoveToVault spends and BuildMoveToVault derives its prevout script
// from independently).
func DepositOutputScript(deposit DepositData) ([]byte, error) {
	out, _, err := scriptTreeOutput(deposit.AggregatedNofNPK, depositLeaves(deposit), int64(deposit.AmountSats))
	if err != nil {
		return nil, err
	}
	return out.PkScript, nil
}
