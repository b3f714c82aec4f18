package txgraph

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

const (
	watchtowerAckConnectorAmountSats = 1_000
	assertConnectorAmountSats        = 1_000
	connectorAmountSats              = 1_000
)

// KickoffConnectors bundles every output Kickoff produces besides its
// change and anchor, along with the taproot spend info each connector
// needs at spend time.
type KickoffConnectors struct {
	ChallengeConnector             *txhandler.TapscriptSpendInfo
	WatchtowerChallengeKickoffConn *txhandler.TapscriptSpendInfo
	WatchtowerAckConns             []*txhandler.TapscriptSpendInfo // one per watchtower, hash160(ackPreimage) leaf + nack-timeout leaf
	AssertConns                    []*txhandler.TapscriptSpendInfo // one per assert step
	FinalizerConnector             *txhandler.TapscriptSpendInfo
	DisproveConnector              *txhandler.TapscriptSpendInfo
	DisproveLeaves                 []script.Leaf // the externally-supplied BitVM leaves plus the trailing timeout leaf
}

// disproveTimeoutLeafIndex is always the last leaf of DisproveLeaves:
// every BitVM leaf supplied by the cache comes first, the housekeeping
// timeout leaf last.
func disproveTimeoutLeafIndex(disproveLeaves []script.Leaf) int {
	return len(disproveLeaves) - 1
}

// watchtowerAckHash160 derives the hash the challenge-ack connector
// gates on from the watchtower's ack preimage commitment (spec.md
// §4.5 leaves the concrete preimage scheme to the signer; here it is
// simply the operator's per-watchtower ack secret, hashed).
func watchtowerAckHash160(ackHash256 [32]byte) [20]byte {
	var out [20]byte
	sum := sha256.Sum256(ackHash256[:])
	copy(out[:], sum[:20])
	return out
}

// BuildKickoff spends one round connector (revealing a Winternitz
// signature over the current chain tip's block hash) and lays out
// every connector the watchtower-challenge, assert, and disprove
// phases spend from (spec.md §4.5).
func BuildKickoff(
	operator OperatorData,
	kickoffID KickoffId,
	roundConnectorOutpoint wire.OutPoint,
	roundConnectorInfo *txhandler.TapscriptSpendInfo,
	roundConnectorWPK winternitz.PublicKey,
	blockHashWotsParams winternitz.Params,
	assertStepPKs []winternitz.PublicKey,
	watchtowerAckHashes [][32]byte,
	bitvmDisproveScripts [][]byte,
	params bridgeparams.BridgeParamset,
) (*txhandler.TxHandler, *KickoffConnectors, error) {
	if uint32(len(assertStepPKs)) != params.NumAssertSteps {
		return nil, nil, bridgeerrors.NewGraphBuildError("txgraph: kickoff needs %d assert-step keys, got %d", params.NumAssertSteps, len(assertStepPKs))
	}
	if uint32(len(watchtowerAckHashes)) != params.NumWatchtowers {
		return nil, nil, bridgeerrors.NewGraphBuildError("txgraph: kickoff needs %d watchtower ack hashes, got %d", params.NumWatchtowers, len(watchtowerAckHashes))
	}

	connectorLeaves := kickoffConnectorLeaves(operator, roundConnectorWPK, blockHashWotsParams, params)
	prevout := &wire.TxOut{Value: kickoffConnectorAmountSats, PkScript: mustScript(roundConnectorInfo)}
	spendable, err := txhandler.NewScriptPathSpendable(prevout, operator.XOnlyPK, connectorLeaves, kickoffConnectorLeafIndex, txhandler.NormalSig("round_connector"), 0)
	if err != nil {
		return nil, nil, err
	}

	b := txhandler.NewBuilder(txhandler.TypeKickoff)
	b.AddInput(txhandler.NormalSig("round_connector"), spendable)
	b.SetPrevOutPoint(0, roundConnectorOutpoint)

	conns := &KickoffConnectors{}

	challengeOut, challengeInfo, err := scriptTreeOutput(operator.XOnlyPK, operatorOrTimeoutLeaves(operator.XOnlyPK, params.AssertTimeoutTimelockBlocks), connectorAmountSats)
	if err != nil {
		return nil, nil, err
	}
	b.AddOutput(challengeOut)
	conns.ChallengeConnector = challengeInfo

	wckOut, wckInfo, err := scriptTreeOutput(operator.XOnlyPK, operatorOrTimeoutLeaves(operator.XOnlyPK, params.KickoffConnectorTimelockBlocks), connectorAmountSats)
	if err != nil {
		return nil, nil, err
	}
	b.AddOutput(wckOut)
	conns.WatchtowerChallengeKickoffConn = wckInfo

	conns.WatchtowerAckConns = make([]*txhandler.TapscriptSpendInfo, params.NumWatchtowers)
	for w := uint32(0); w < params.NumWatchtowers; w++ {
		leaves := []script.Leaf{
			script.NewPreimageReveal(operator.XOnlyPK, watchtowerAckHash160(watchtowerAckHashes[w])),
			script.NewTimelock(nil, params.AssertTimeoutTimelockBlocks),
		}
		out, info, err := scriptTreeOutput(operator.XOnlyPK, leaves, watchtowerAckConnectorAmountSats)
		if err != nil {
			return nil, nil, err
		}
		b.AddOutput(out)
		conns.WatchtowerAckConns[w] = info
	}

	conns.AssertConns = make([]*txhandler.TapscriptSpendInfo, params.NumAssertSteps)
	for j := uint32(0); j < params.NumAssertSteps; j++ {
		leaves := []script.Leaf{
			script.NewWinternitzCommit(operator.XOnlyPK, assertStepPKs[j], winternitz.Params{MessageLenBytes: blockHashWotsParams.MessageLenBytes}),
			script.NewTimelock(nil, params.AssertTimeoutTimelockBlocks),
		}
		out, info, err := scriptTreeOutput(operator.XOnlyPK, leaves, assertConnectorAmountSats)
		if err != nil {
			return nil, nil, err
		}
		b.AddOutput(out)
		conns.AssertConns[j] = info
	}

	finalizerOut, finalizerInfo, err := scriptTreeOutput(operator.XOnlyPK, operatorOrTimeoutLeaves(operator.XOnlyPK, params.DisproveTimeoutTimelockBlocks), connectorAmountSats)
	if err != nil {
		return nil, nil, err
	}
	b.AddOutput(finalizerOut)
	conns.FinalizerConnector = finalizerInfo

	disproveLeaves := make([]script.Leaf, 0, len(bitvmDisproveScripts)+1)
	for _, s := range bitvmDisproveScripts {
		disproveLeaves = append(disproveLeaves, script.NewRaw(s))
	}
	disproveLeaves = append(disproveLeaves, script.NewTimelock(nil, params.DisproveTimeoutTimelockBlocks))
	disproveOut, disproveInfo, err := scriptTreeOutput(operator.XOnlyPK, disproveLeaves, connectorAmountSats)
	if err != nil {
		return nil, nil, err
	}
	b.AddOutput(disproveOut)
	conns.DisproveConnector = disproveInfo
	conns.DisproveLeaves = disproveLeaves

	b.AddOutput(anchorOutput(params.AnchorAmountSats))

	handler, err := b.Finalize([]txhandler.SignatureKind{txhandler.NormalSig("round_connector")})
	return handler, conns, err
}

func mustScript(info *txhandler.TapscriptSpendInfo) []byte {
	if info == nil {
		return nil
	}
	s, err := info.OutputScript()
	if err != nil {
		return nil
	}
	return s
}
