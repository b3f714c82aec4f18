package txgraph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
)

const (
	operatorLeafIndex = 0
	timeoutLeafIndex  = 1
)

// payoutOutputs is the common output shape every descendant
// transaction below produces: a single key-path payment plus the
// anchor.
func payoutOutputs(payTo *btcec.PublicKey, amountSats int64, params bridgeparams.BridgeParamset) ([]*wire.TxOut, error) {
	out, err := keyOnlyOutput(payTo, amountSats-params.AnchorAmountSats)
	if err != nil {
		return nil, err
	}
	return []*wire.TxOut{out, anchorOutput(params.AnchorAmountSats)}, nil
}

// BuildUnspentKickoff reclaims Round[roundIdx]'s kickoff connector k
// once it matures unused (spec.md §4.5 housekeeping path): nobody ever
// kicked off with that connector, so its value returns to the round's
// operator via the connector's own timeout leaf.
func BuildUnspentKickoff(operator OperatorData, roundIdx, kickoffIdx uint32, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(operator.XOnlyPK, kickoffConnectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("unspent_kickoff")
	return buildFromConnector(
		txhandler.UnspentKickoff(int(kickoffIdx)),
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: timeoutLeafIndex, AmountSats: kickoffConnectorAmountSats, SigKind: sigKind, Sequence: params.KickoffConnectorTimelockBlocks},
		outputs,
		nil,
	)
}

// BuildWatchtowerChallengeKickoff opens the watchtower-challenge
// window: the operator spends Kickoff's dedicated connector, signaling
// watchtowers may now publish WatchtowerChallenge transactions.
func BuildWatchtowerChallengeKickoff(operator OperatorData, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, connInfo *txhandler.TapscriptSpendInfo, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	leaves := operatorOrTimeoutLeaves(operator.XOnlyPK, params.KickoffConnectorTimelockBlocks)
	outputs, err := payoutOutputs(operator.XOnlyPK, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("operator")
	return buildFromConnector(
		txhandler.TypeWatchtowerChallengeKickoff,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: operatorLeafIndex, AmountSats: connectorAmountSats, SigKind: sigKind},
		outputs,
		[]txhandler.SignatureKind{sigKind},
	)
}

// BuildWatchtowerChallenge is funded from the watchtower's own UTXO
// (it does not spend anything out of the kickoff graph) and commits
// its challenge payload via OP_RETURN (spec.md §4.5:
// "WatchtowerChallenge[w]").
func BuildWatchtowerChallenge(watchtowerIdx int, fundingOutpoint wire.OutPoint, fundingAmountSats int64, watchtowerPK *btcec.PublicKey, payload []byte, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	sigKind := txhandler.NumberedSig("watchtower", watchtowerIdx)
	prevout := &wire.TxOut{Value: fundingAmountSats}
	spendable := txhandler.NewKeyPathSpendable(prevout, watchtowerPK, sigKind, 0)

	opReturn, err := script.OpReturn(payload)
	if err != nil {
		return nil, err
	}

	b := txhandler.NewBuilder(txhandler.WatchtowerChallenge(watchtowerIdx))
	b.AddInput(sigKind, spendable)
	b.SetPrevOutPoint(0, fundingOutpoint)
	b.AddOutput(&wire.TxOut{Value: 0, PkScript: opReturn})
	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	return b.Finalize([]txhandler.SignatureKind{sigKind})
}

// BuildOperatorChallengeAck spends watchtower w's ack connector via the
// preimage-reveal leaf: the operator proves it saw the challenge.
func BuildOperatorChallengeAck(operator OperatorData, watchtowerIdx int, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(operator.XOnlyPK, watchtowerAckConnectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NumberedSig("ack", watchtowerIdx)
	return buildFromConnector(
		txhandler.OperatorChallengeAck(watchtowerIdx),
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: operatorLeafIndex, AmountSats: watchtowerAckConnectorAmountSats, SigKind: sigKind},
		outputs,
		[]txhandler.SignatureKind{sigKind},
	)
}

// BuildOperatorChallengeNack spends watchtower w's ack connector via
// its timeout leaf: the operator never acked, so the connector burns
// to the housekeeping path instead.
func BuildOperatorChallengeNack(watchtowerIdx int, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, burnTo *btcec.PublicKey, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(burnTo, watchtowerAckConnectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NumberedSig("nack", watchtowerIdx)
	return buildFromConnector(
		txhandler.OperatorChallengeNack(watchtowerIdx),
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: timeoutLeafIndex, AmountSats: watchtowerAckConnectorAmountSats, SigKind: sigKind, Sequence: params.AssertTimeoutTimelockBlocks},
		outputs,
		nil,
	)
}

// BuildChallenge spends Kickoff's challenge connector via its
// anyone-spendable timeout leaf, forcing the operator down the assert
// path once the connector matures (spec.md §4.5: "Challenge").
func BuildChallenge(operator OperatorData, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	leaves := operatorOrTimeoutLeaves(operator.XOnlyPK, params.AssertTimeoutTimelockBlocks)
	outputs, err := payoutOutputs(operator.XOnlyPK, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("challenger")
	return buildFromConnector(
		txhandler.TypeChallenge,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: timeoutLeafIndex, AmountSats: connectorAmountSats, SigKind: sigKind, Sequence: params.AssertTimeoutTimelockBlocks},
		outputs,
		nil,
	)
}

// BuildChallengeTimeout lets the operator reclaim the challenge
// connector directly, before any challenger spent it.
func BuildChallengeTimeout(operator OperatorData, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	leaves := operatorOrTimeoutLeaves(operator.XOnlyPK, params.AssertTimeoutTimelockBlocks)
	outputs, err := payoutOutputs(operator.XOnlyPK, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("operator")
	return buildFromConnector(
		txhandler.TypeChallengeTimeout,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: operatorLeafIndex, AmountSats: connectorAmountSats, SigKind: sigKind},
		outputs,
		[]txhandler.SignatureKind{sigKind},
	)
}

// BuildMiniAssert reveals assert step j: the operator spends that
// step's Winternitz-committed connector, publishing its step's claim.
func BuildMiniAssert(operator OperatorData, stepIdx int, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(operator.XOnlyPK, assertConnectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NumberedSig("assert", stepIdx)
	return buildFromConnector(
		txhandler.MiniAssert(stepIdx),
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: operatorLeafIndex, AmountSats: assertConnectorAmountSats, SigKind: sigKind},
		outputs,
		[]txhandler.SignatureKind{sigKind},
	)
}

// BuildAssertTimeout spends assert step j's connector via its timeout
// leaf: the operator failed to reveal the step, so anyone may burn the
// connector (and, in the caller's higher-level orchestration, treat the
// kickoff as forfeit).
func BuildAssertTimeout(stepIdx int, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, burnTo *btcec.PublicKey, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(burnTo, assertConnectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NumberedSig("assert_timeout", stepIdx)
	return buildFromConnector(
		txhandler.AssertTimeout(stepIdx),
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: timeoutLeafIndex, AmountSats: assertConnectorAmountSats, SigKind: sigKind, Sequence: params.AssertTimeoutTimelockBlocks},
		outputs,
		nil,
	)
}

// BuildDisprove spends the kickoff's disprove connector through the
// BitVM leaf at leafIndex: a successful witness there proves the
// operator's assert steps were fraudulent, and the reward routes to
// the challenger instead of back to the operator.
func BuildDisprove(challengerPK *btcec.PublicKey, leafIndex int, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, rawWitness [][]byte, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	if leafIndex == disproveTimeoutLeafIndex(leaves) {
		return nil, bridgeerrors.NewGraphBuildError("txgraph: disprove leaf index %d is the timeout leaf, not a BitVM script", leafIndex)
	}
	outputs, err := payoutOutputs(challengerPK, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("disprove")
	return buildFromConnector(
		txhandler.TypeDisprove,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: leafIndex, AmountSats: connectorAmountSats, SigKind: sigKind},
		outputs,
		nil,
	)
}

// BuildDisproveTimeout spends the disprove connector via its trailing
// timeout leaf: nobody disproved the assert steps in time, so the
// operator proceeds to Reimburse.
func BuildDisproveTimeout(operator OperatorData, connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(operator.XOnlyPK, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("disprove_timeout")
	return buildFromConnector(
		txhandler.TypeDisproveTimeout,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: disproveTimeoutLeafIndex(leaves), AmountSats: connectorAmountSats, SigKind: sigKind, Sequence: params.DisproveTimeoutTimelockBlocks},
		outputs,
		nil,
	)
}

// BuildReimburse reassembles the operator's kickoff collateral by
// spending three outputs at once: the deposit's MoveToVault output
// (the N-of-N releases the vaulted funds once a kickoff attempt
// resolves honestly), DisproveTimeout's payout (nobody successfully
// disputed the assert steps in time), and the dedicated reimburse
// connector the following round carries for this kickoff
// (ReimburseConnectorOutputIndex of Round[roundIdx+1]). The total pays
// out to the operator's reimburse address, closing out the kickoff
// attempt (spec.md §4.5; original_source:
// create_reimburse_txhandler(MoveToVault, DisproveTimeout,
// ReimburseGenerator, ...)).
func BuildReimburse(
	operator OperatorData,
	nofnPK *btcec.PublicKey,
	moveToVaultOutpoint wire.OutPoint,
	moveToVaultAmountSats int64,
	disproveTimeoutOutpoint wire.OutPoint,
	disproveTimeoutAmountSats int64,
	reimburseConnectorOutpoint wire.OutPoint,
	params bridgeparams.BridgeParamset,
) (*txhandler.TxHandler, error) {
	nofnSigKind := txhandler.NormalSig("nofn")
	disproveTimeoutSigKind := txhandler.NormalSig("disprove_timeout")
	reimburseConnSigKind := txhandler.NormalSig("reimburse_connector")

	moveToVaultSpendable := txhandler.NewKeyPathSpendable(&wire.TxOut{Value: moveToVaultAmountSats}, nofnPK, nofnSigKind, 0)
	disproveTimeoutSpendable := txhandler.NewKeyPathSpendable(&wire.TxOut{Value: disproveTimeoutAmountSats}, operator.XOnlyPK, disproveTimeoutSigKind, 0)
	reimburseConnSpendable := txhandler.NewKeyPathSpendable(&wire.TxOut{Value: reimburseConnectorAmountSats}, operator.XOnlyPK, reimburseConnSigKind, 0)

	total := moveToVaultAmountSats + disproveTimeoutAmountSats + reimburseConnectorAmountSats

	b := txhandler.NewBuilder(txhandler.TypeReimburse)
	b.AddInput(nofnSigKind, moveToVaultSpendable)
	b.SetPrevOutPoint(0, moveToVaultOutpoint)
	b.AddInput(disproveTimeoutSigKind, disproveTimeoutSpendable)
	b.SetPrevOutPoint(1, disproveTimeoutOutpoint)
	b.AddInput(reimburseConnSigKind, reimburseConnSpendable)
	b.SetPrevOutPoint(2, reimburseConnectorOutpoint)

	b.AddOutput(rawOutput(operator.ReimburseAddress, total-params.AnchorAmountSats))
	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	return b.Finalize([]txhandler.SignatureKind{nofnSigKind, disproveTimeoutSigKind, reimburseConnSigKind})
}

// BuildKickoffNotFinalized spends the finalizer connector's timeout
// leaf: the operator never finalized the kickoff (e.g. walked away
// after a successful challenge), so the connector burns instead.
func BuildKickoffNotFinalized(connectorOutpoint wire.OutPoint, internalKey *btcec.PublicKey, leaves []script.Leaf, burnTo *btcec.PublicKey, params bridgeparams.BridgeParamset) (*txhandler.TxHandler, error) {
	outputs, err := payoutOutputs(burnTo, connectorAmountSats, params)
	if err != nil {
		return nil, err
	}
	sigKind := txhandler.NormalSig("kickoff_not_finalized")
	return buildFromConnector(
		txhandler.TypeKickoffNotFinalized,
		connectorSpend{Outpoint: connectorOutpoint, InternalKey: internalKey, Leaves: leaves, LeafIndex: timeoutLeafIndex, AmountSats: connectorAmountSats, SigKind: sigKind, Sequence: params.DisproveTimeoutTimelockBlocks},
		outputs,
		nil,
	)
}
