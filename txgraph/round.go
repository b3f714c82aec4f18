package txgraph

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// kickoffConnectorAmountSats is the value given to each per-kickoff
// connector output Round carries; small enough to keep the round's
// collateral mostly intact across a full NumKickoffsPerRound cycle,
// large enough to stay comfortably above the dust limit.
const kickoffConnectorAmountSats = 10_000

// reimburseConnectorAmountSats is the value given to each dedicated
// reimburse connector Round carries for the previous round's kickoffs
// (spec.md §4.5; original_source's ReimburseGenerator folded into
// Round here rather than kept as its own transaction type).
const reimburseConnectorAmountSats = 10_000

// kickoffConnectorLeafIndex is the WinternitzCommit leaf's position
// within a kickoff connector's two-leaf tree (the timelock leaf is 1,
// used by the housekeeping UnspentKickoff path).
const kickoffConnectorLeafIndex = 0

func kickoffConnectorLeaves(operator OperatorData, wpk winternitz.PublicKey, wotsParams winternitz.Params, params bridgeparams.BridgeParamset) []script.Leaf {
	return []script.Leaf{
		script.NewWinternitzCommit(operator.XOnlyPK, wpk, wotsParams),
		script.NewTimelock(nil, params.KickoffConnectorTimelockBlocks),
	}
}

// BuildRound assembles Round[roundIdx] (spec.md §4.5): it spends the
// operator's prior collateral (the operator's external funding
// outpoint for round 0, ReadyToReimburse[roundIdx-1]'s output for
// every later round) and re-outputs the remainder under a fresh
// operator-key output, one taproot connector per kickoff slot in this
// round, one dedicated reimburse connector per kickoff slot of the
// PREVIOUS round (spec.md §4.5: "a dedicated reimburse connector of
// the next Round[i+1]" — from the previous round's point of view, this
// round is that Round[i+1]), and the anchor.
//
// kickoffWinternitzPKs must have exactly params.NumKickoffsPerRound
// entries, one connector key per kickoff index, already derived by the
// caller (normally via a ReimburseCache backed by signer.Actor).
func BuildRound(
	operator OperatorData,
	roundIdx uint32,
	prevOutpoint wire.OutPoint,
	prevAmountSats int64,
	prevSigKind txhandler.SignatureKind,
	kickoffWinternitzPKs []winternitz.PublicKey,
	wotsParams winternitz.Params,
	params bridgeparams.BridgeParamset,
) (*txhandler.TxHandler, []*txhandler.TapscriptSpendInfo, error) {
	if uint32(len(kickoffWinternitzPKs)) != params.NumKickoffsPerRound {
		return nil, nil, bridgeerrors.NewGraphBuildError(
			"txgraph: round %d needs %d kickoff connector keys, got %d", roundIdx, params.NumKickoffsPerRound, len(kickoffWinternitzPKs))
	}

	prevout := &wire.TxOut{Value: prevAmountSats} // PkScript filled by caller's prevout lookup; key-path spend doesn't need it here
	spendable := txhandler.NewKeyPathSpendable(prevout, operator.XOnlyPK, prevSigKind, 0)

	b := txhandler.NewBuilder(txhandler.IndexedType("Round", int(roundIdx)))
	b.AddInput(prevSigKind, spendable)
	b.SetPrevOutPoint(0, prevOutpoint)

	connectorTotal := int64(params.NumKickoffsPerRound) * kickoffConnectorAmountSats
	reimburseTotal := int64(params.NumKickoffsPerRound) * reimburseConnectorAmountSats
	operatorRemainder := prevAmountSats - connectorTotal - reimburseTotal - params.AnchorAmountSats
	if operatorRemainder < 0 {
		return nil, nil, bridgeerrors.NewGraphBuildError("txgraph: round %d collateral %d insufficient for %d connectors", roundIdx, prevAmountSats, params.NumKickoffsPerRound)
	}

	operatorOut, err := keyOnlyOutput(operator.XOnlyPK, operatorRemainder)
	if err != nil {
		return nil, nil, err
	}
	b.AddOutput(operatorOut)

	spendInfos := make([]*txhandler.TapscriptSpendInfo, params.NumKickoffsPerRound)
	for k := uint32(0); k < params.NumKickoffsPerRound; k++ {
		leaves := kickoffConnectorLeaves(operator, kickoffWinternitzPKs[k], wotsParams, params)
		out, info, err := scriptTreeOutput(operator.XOnlyPK, leaves, kickoffConnectorAmountSats)
		if err != nil {
			return nil, nil, err
		}
		b.AddOutput(out)
		spendInfos[k] = info
	}

	for k := uint32(0); k < params.NumKickoffsPerRound; k++ {
		out, err := keyOnlyOutput(operator.XOnlyPK, reimburseConnectorAmountSats)
		if err != nil {
			return nil, nil, err
		}
		b.AddOutput(out)
	}

	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	handler, err := b.Finalize([]txhandler.SignatureKind{prevSigKind})
	return handler, spendInfos, err
}

// ReimburseConnectorOutputIndex locates Round[roundIdx]'s dedicated
// reimburse connector for the previous round's kickoffIdx: output 0 is
// the operator's change, outputs 1..NumKickoffsPerRound are this
// round's own kickoff connectors, and the following
// NumKickoffsPerRound outputs are the reimburse connectors Reimburse
// spends (spec.md §4.5).
func ReimburseConnectorOutputIndex(params bridgeparams.BridgeParamset, kickoffIdx uint32) uint32 {
	return 1 + params.NumKickoffsPerRound + kickoffIdx
}

// BuildReadyToReimburse spends Round[roundIdx]'s operator-key output
// (input sequence set to the reimburse timelock, enforced chain-wide
// by BIP68 regardless of the simple key-path script) and re-pays the
// operator under a fresh key-path output (spec.md §4.5:
// "ReadyToReimburse[i]: pays to operator-key; sequence =
// operator_reimburse_timelock").
func BuildReadyToReimburse(
	operator OperatorData,
	roundIdx uint32,
	roundOutpoint wire.OutPoint,
	roundOperatorAmountSats int64,
	params bridgeparams.BridgeParamset,
) (*txhandler.TxHandler, error) {
	sigKind := txhandler.NormalSig("operator")
	prevout := &wire.TxOut{Value: roundOperatorAmountSats}
	spendable := txhandler.NewKeyPathSpendable(prevout, operator.XOnlyPK, sigKind, params.OperatorReimburseTimelockBlocks)

	b := txhandler.NewBuilder(txhandler.IndexedType("ReadyToReimburse", int(roundIdx)))
	b.AddInput(sigKind, spendable)
	b.SetPrevOutPoint(0, roundOutpoint)

	out, err := keyOnlyOutput(operator.XOnlyPK, roundOperatorAmountSats-params.AnchorAmountSats)
	if err != nil {
		return nil, err
	}
	b.AddOutput(out)
	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	return b.Finalize([]txhandler.SignatureKind{sigKind})
}
