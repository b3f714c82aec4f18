package signer

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/chaincfg"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return New(priv, [32]byte{1, 2, 3}, chaincfg.Regtest)
}

func TestDerivationPathsAreDomainSeparated(t *testing.T) {
	p1 := DerivationPath{Kind: PathKickoff, RoundIdx: 0, KickoffIdx: 1}
	p2 := DerivationPath{Kind: PathKickoff, RoundIdx: 1, KickoffIdx: 0}
	require.NotEqual(t, p1.Bytes(), p2.Bytes())

	p3 := DerivationPath{Kind: PathWatchtowerChallenge, OperatorIdx: 0, DepositTxid: [32]byte{1}}
	p4 := DerivationPath{Kind: PathChallengeAckHash, WatchtowerIdx: 0, DepositTxid: [32]byte{1}}
	require.NotEqual(t, p3.Bytes(), p4.Bytes(), "different path kinds must not collide even with matching numeric fields")
}

func TestDeriveWinternitzPKIsDeterministic(t *testing.T) {
	actor := newTestActor(t)
	params := winternitz.Params{MessageLenBytes: 32}
	path := DerivationPath{Kind: PathKickoff, RoundIdx: 2, KickoffIdx: 5}

	pk1 := actor.DeriveWinternitzPK(path, params)
	pk2 := actor.DeriveWinternitzPK(path, params)
	require.Equal(t, pk1, pk2)
}

func TestSignInputFillsSlot(t *testing.T) {
	actor := newTestActor(t)

	prevout := &wire.TxOut{Value: 100_000, PkScript: []byte{0x51, 0x20}}
	spendable := txhandler.NewKeyPathSpendable(prevout, actor.XOnlyPublicKey(), txhandler.NormalSig("nofn"), 0)

	b := txhandler.NewBuilder(txhandler.TypeMoveToVault)
	b.AddInput(txhandler.NormalSig("nofn"), spendable)
	b.SetPrevOutPoint(0, wire.OutPoint{})
	b.AddOutput(&wire.TxOut{Value: 99_000})

	handler, err := b.Finalize([]txhandler.SignatureKind{txhandler.NormalSig("nofn")})
	require.NoError(t, err)

	err = actor.SignInput(handler, 0, txhandler.NormalSig("nofn"), 0)
	require.NoError(t, err)

	checked, err := handler.Checked()
	require.NoError(t, err)

	_, err = checked.EncodeTx()
	require.NoError(t, err)
}

func TestTxSignWinternitzRequiresPath(t *testing.T) {
	actor := newTestActor(t)
	params := winternitz.Params{MessageLenBytes: 8}

	prevout := &wire.TxOut{Value: 1000}
	spendable := txhandler.NewKeyPathSpendable(prevout, actor.XOnlyPublicKey(), txhandler.NormalSig("x"), 0)
	b := txhandler.NewBuilder(txhandler.TypeKickoff)
	b.AddInput(txhandler.NormalSig("x"), spendable)
	b.SetPrevOutPoint(0, wire.OutPoint{})
	b.AddOutput(&wire.TxOut{Value: 900})
	handler, err := b.Finalize(nil)
	require.NoError(t, err)

	err = actor.TxSignWinternitz(handler,
		map[txhandler.SignatureKind][]byte{txhandler.NormalSig("wots"): make([]byte, 8)},
		map[txhandler.SignatureKind]DerivationPath{},
		params,
	)
	require.Error(t, err)
}
