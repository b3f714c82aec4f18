package txgraph

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/bridgeparams"
	"github.com/bridge-node/vault-bridge/signer"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// fakeCache derives Winternitz keys from a fixed master seed via the
// real derivation scheme and returns a couple of placeholder BitVM
// scripts, standing in for a persistence-backed ReimburseCache in
// tests.
type fakeCache struct {
	actor *signer.Actor
}

func (c *fakeCache) WinternitzPK(operator []byte, depositOutpoint wire.OutPoint, path []byte, params winternitz.Params) (winternitz.PublicKey, error) {
	sk := winternitz.DeriveSecretKey([32]byte{9, 9, 9}, path, params)
	return sk.PublicKey(), nil
}

func (c *fakeCache) BitVMDisproveScripts(operator []byte, depositOutpoint wire.OutPoint) ([][]byte, error) {
	return [][]byte{{byte(txscript.OP_TRUE)}, {byte(txscript.OP_TRUE)}}, nil
}

func testPK(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func smallParams() bridgeparams.BridgeParamset {
	p := bridgeparams.DefaultRegtest()
	p.NumKickoffsPerRound = 2
	p.NumWatchtowers = 2
	p.NumAssertSteps = 3
	return p
}

func testDeposit(t *testing.T) DepositData {
	t.Helper()
	return DepositData{
		DepositOutpoint:      wire.OutPoint{Index: 0},
		EvmRecipient:         [20]byte{1, 2, 3},
		UserRecoveryXOnlyPK:  testPK(t),
		UserRecoveryTimelock: 1008,
		AggregatedNofNPK:     testPK(t),
		AmountSats:           1_000_000,
	}
}

func TestBuildMoveToVault(t *testing.T) {
	deposit := testDeposit(t)
	params := smallParams()

	handler, err := BuildMoveToVault(deposit, params)
	require.NoError(t, err)
	require.Equal(t, 1, len(handler.Inputs))
	require.Equal(t, 2, len(handler.Tx.TxOut))
	require.Equal(t, deposit.DepositOutpoint, handler.Tx.TxIn[0].PreviousOutPoint)
}

func TestBuildRoundAndReadyToReimburse(t *testing.T) {
	operator := OperatorData{XOnlyPK: testPK(t), CollateralAmountSat: 5_000_000}
	params := smallParams()
	wotsParams := winternitz.Params{MessageLenBytes: 32}

	pks := make([]winternitz.PublicKey, params.NumKickoffsPerRound)
	for i := range pks {
		sk := winternitz.DeriveSecretKey([32]byte{1}, []byte{byte(i)}, wotsParams)
		pks[i] = sk.PublicKey()
	}

	sigKind := txhandler.NormalSig("operator")
	round, spendInfos, err := BuildRound(operator, 0, operator.CollateralOutpoint, int64(operator.CollateralAmountSat), sigKind, pks, wotsParams, params)
	require.NoError(t, err)
	require.Len(t, spendInfos, int(params.NumKickoffsPerRound))
	// operator change + NumKickoffsPerRound kickoff connectors +
	// NumKickoffsPerRound reimburse connectors + anchor
	require.Equal(t, int(params.NumKickoffsPerRound)*2+2, len(round.Tx.TxOut))

	roundOutpoint := wire.OutPoint{Hash: round.Tx.TxHash(), Index: 0}
	rtr, err := BuildReadyToReimburse(operator, 0, roundOutpoint, round.Tx.TxOut[0].Value, params)
	require.NoError(t, err)
	require.Equal(t, roundOutpoint, rtr.Tx.TxIn[0].PreviousOutPoint)
	require.Equal(t, params.OperatorReimburseTimelockBlocks, rtr.Tx.TxIn[0].Sequence)
}

func TestBuildReimburseSpendsMoveToVaultAndReimburseConnector(t *testing.T) {
	operator := OperatorData{XOnlyPK: testPK(t), ReimburseAddress: []byte{0x51}}
	nofnPK := testPK(t)
	params := smallParams()

	moveToVaultOutpoint := wire.OutPoint{Hash: [32]byte{1}, Index: 0}
	disproveTimeoutOutpoint := wire.OutPoint{Hash: [32]byte{2}, Index: 0}
	reimburseConnectorOutpoint := wire.OutPoint{Hash: [32]byte{3}, Index: ReimburseConnectorOutputIndex(params, 1)}

	moveToVaultAmountSats := int64(1_000_000) - params.AnchorAmountSats
	disproveTimeoutAmountSats := connectorAmountSats - params.AnchorAmountSats

	handler, err := BuildReimburse(
		operator,
		nofnPK,
		moveToVaultOutpoint,
		moveToVaultAmountSats,
		disproveTimeoutOutpoint,
		disproveTimeoutAmountSats,
		reimburseConnectorOutpoint,
		params,
	)
	require.NoError(t, err)

	require.Equal(t, 3, len(handler.Inputs))
	require.Equal(t, moveToVaultOutpoint, handler.Tx.TxIn[0].PreviousOutPoint)
	require.Equal(t, disproveTimeoutOutpoint, handler.Tx.TxIn[1].PreviousOutPoint)
	require.Equal(t, reimburseConnectorOutpoint, handler.Tx.TxIn[2].PreviousOutPoint)

	require.Equal(t, 2, len(handler.Tx.TxOut))
	wantPayout := moveToVaultAmountSats + disproveTimeoutAmountSats + reimburseConnectorAmountSats - params.AnchorAmountSats
	require.Equal(t, wantPayout, handler.Tx.TxOut[0].Value)
	require.Equal(t, operator.ReimburseAddress, []byte(handler.Tx.TxOut[0].PkScript))
}

func TestBuildFullKickoffGraph(t *testing.T) {
	deposit := testDeposit(t)
	operator := OperatorData{XOnlyPK: testPK(t), CollateralAmountSat: 5_000_000}
	params := smallParams()
	wotsParams := winternitz.Params{MessageLenBytes: 32}

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	cache := &fakeCache{actor: signer.New(priv, [32]byte{9, 9, 9}, params.Network)}

	kickoffID := KickoffId{OperatorXOnlyPK: operator.XOnlyPK, RoundIdx: 0, KickoffIdx: 1}
	watchtowerAcks := make([][32]byte, params.NumWatchtowers)

	build := BuildParams{
		RoundFundingOutpoint:   operator.CollateralOutpoint,
		RoundFundingAmountSats: int64(operator.CollateralAmountSat),
		RoundFundingSigKind:    txhandler.NormalSig("operator"),
		KickoffBlockHash:       [32]byte{7},
		WatchtowerAckHashes:    watchtowerAcks,
		WotsParams:             wotsParams,
	}

	g, err := Build(deposit, operator, kickoffID, build, params, cache)
	require.NoError(t, err)

	round, ok := g.Handler(txhandler.IndexedType("Round", 0))
	require.True(t, ok)
	kickoff, ok := g.Handler(txhandler.TypeKickoff)
	require.True(t, ok)
	require.NotNil(t, g.KickoffConns)
	require.Len(t, g.KickoffConns.AssertConns, int(params.NumAssertSteps))
	require.Len(t, g.KickoffConns.WatchtowerAckConns, int(params.NumWatchtowers))
	require.Len(t, g.KickoffConns.DisproveLeaves, 3) // 2 bitvm scripts + 1 timeout leaf

	require.Equal(t, round.Tx.TxHash(), kickoff.Tx.TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, kickoffID.KickoffIdx+1, kickoff.Tx.TxIn[0].PreviousOutPoint.Index)
}
