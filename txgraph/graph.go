package txgraph

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/signer"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// Graph is the fixed set of transaction handlers one kickoff attempt
// needs (spec.md §4.5/§9). Unlike the arena-by-BTree the original
// keeps (cyclic references resolved by transaction-type key), this is
// a plain map keyed by txhandler.TransactionType — Go has no trouble
// with a map holding every variant, cyclic or not, since nothing here
// actually needs a live pointer cycle: each handler only needs its
// parent's already-computed txid.
type Graph struct {
	Handlers map[txhandler.TransactionType]*txhandler.TxHandler

	RoundKickoffConnectors []*txhandler.TapscriptSpendInfo
	KickoffConns           *KickoffConnectors
}

func newGraph() *Graph {
	return &Graph{Handlers: make(map[txhandler.TransactionType]*txhandler.TxHandler)}
}

func (g *Graph) put(h *txhandler.TxHandler) {
	g.Handlers[h.TxType] = h
}

// Handler looks up one of the graph's transactions by type.
func (g *Graph) Handler(t txhandler.TransactionType) (*txhandler.TxHandler, bool) {
	h, ok := g.Handlers[t]
	return h, ok
}

func outpoint(h *txhandler.TxHandler, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: h.Tx.TxHash(), Index: index}
}

// BuildParams bundles everything Build needs beyond the protocol-wide
// BridgeParamset: the round's funding source (the operator's
// collateral outpoint for round 0, or the prior round's
// ReadyToReimburse output for any later round — the caller tracks
// which, since that is on-chain history this package does not keep),
// the chain tip committed at kickoff time, and every watchtower's ack
// hash for this deposit.
type BuildParams struct {
	RoundFundingOutpoint   wire.OutPoint
	RoundFundingAmountSats int64
	RoundFundingSigKind    txhandler.SignatureKind

	KickoffBlockHash [32]byte

	WatchtowerAckHashes [][32]byte

	WotsParams winternitz.Params
}

// Build assembles the full single-kickoff graph: MoveToVault, the
// round carrying kickoffID's connector, the Kickoff spending it, and
// every connector Kickoff lays out for the watchtower-challenge,
// assert, disprove and reimburse phases. Transactions further down
// each branch (Challenge, MiniAssert, Disprove, ...) are built
// on-demand once their predecessor's outpoint is known, since which
// branch is actually taken depends on what happens on chain; Build
// only lays out what always exists regardless of branch.
func Build(
	deposit DepositData,
	operator OperatorData,
	kickoffID KickoffId,
	build BuildParams,
	params bridgeparams.BridgeParamset,
	cache ReimburseCache,
) (*Graph, error) {
	g := newGraph()

	moveToVault, err := BuildMoveToVault(deposit, params)
	if err != nil {
		return nil, err
	}
	g.put(moveToVault)

	operatorBytes := schnorr.SerializePubKey(operator.XOnlyPK)

	kickoffPKs := make([]winternitz.PublicKey, params.NumKickoffsPerRound)
	for k := uint32(0); k < params.NumKickoffsPerRound; k++ {
		path := signer.DerivationPath{Kind: signer.PathKickoff, RoundIdx: kickoffID.RoundIdx, KickoffIdx: k}
		pk, err := cache.WinternitzPK(operatorBytes, deposit.DepositOutpoint, path.Bytes(), build.WotsParams)
		if err != nil {
			return nil, err
		}
		kickoffPKs[k] = pk
	}

	round, spendInfos, err := BuildRound(operator, kickoffID.RoundIdx, build.RoundFundingOutpoint, build.RoundFundingAmountSats, build.RoundFundingSigKind, kickoffPKs, build.WotsParams, params)
	if err != nil {
		return nil, err
	}
	g.put(round)
	g.RoundKickoffConnectors = spendInfos

	// Output 0 is the operator's change; outputs 1..NumKickoffsPerRound
	// are the per-kickoff connectors in order; the reimburse connectors
	// follow them and the anchor comes last.
	connectorOutputIndex := kickoffID.KickoffIdx + 1
	connectorOutpoint := outpoint(round, connectorOutputIndex)

	assertStepPKs := make([]winternitz.PublicKey, params.NumAssertSteps)
	for j := uint32(0); j < params.NumAssertSteps; j++ {
		path := signer.DerivationPath{Kind: signer.PathAssertStep, RoundIdx: kickoffID.RoundIdx, KickoffIdx: kickoffID.KickoffIdx, StepIdx: j}
		pk, err := cache.WinternitzPK(operatorBytes, deposit.DepositOutpoint, path.Bytes(), build.WotsParams)
		if err != nil {
			return nil, err
		}
		assertStepPKs[j] = pk
	}

	disproveScripts, err := cache.BitVMDisproveScripts(operatorBytes, deposit.DepositOutpoint)
	if err != nil {
		return nil, err
	}

	kickoff, conns, err := BuildKickoff(operator, kickoffID, connectorOutpoint, spendInfos[kickoffID.KickoffIdx], kickoffPKs[kickoffID.KickoffIdx], build.WotsParams, assertStepPKs, build.WatchtowerAckHashes, disproveScripts, params)
	if err != nil {
		return nil, err
	}
	g.put(kickoff)
	g.KickoffConns = conns

	return g, nil
}
