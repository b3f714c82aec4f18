package txhandler

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/script"
)

func testKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestKeyPathBuildCheckedEncode(t *testing.T) {
	pk := testKey(t)
	prevout := &wire.TxOut{Value: 100_000}
	spendable := NewKeyPathSpendable(prevout, pk, NormalSig("nofn"), 0)

	b := NewBuilder(TypeMoveToVault)
	b.AddInput(NormalSig("nofn"), spendable)
	b.SetPrevOutPoint(0, wire.OutPoint{})
	b.AddOutput(&wire.TxOut{Value: 99_000})

	handler, err := b.Finalize([]SignatureKind{NormalSig("nofn")})
	require.NoError(t, err)

	_, err = handler.Checked()
	require.Error(t, err, "must fail before the signature slot is filled")

	handler.FillSignature(NormalSig("nofn"), make([]byte, 64))

	checked, err := handler.Checked()
	require.NoError(t, err)

	encoded, err := checked.EncodeTx()
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
}

func TestScriptPathBuildCheckedEncode(t *testing.T) {
	pkA := testKey(t)
	pkB := testKey(t)
	internalKey := testKey(t)

	leaves := []script.Leaf{
		script.NewCheckSig(pkA),
		script.NewTimelock(pkB, 144),
	}

	prevout := &wire.TxOut{Value: 50_000}
	spendable, err := NewScriptPathSpendable(prevout, internalKey, leaves, 0, NormalSig("assert"), 0)
	require.NoError(t, err)

	b := NewBuilder(TypeReimburse)
	b.AddInput(NormalSig("assert"), spendable)
	b.SetPrevOutPoint(0, wire.OutPoint{})
	b.AddOutput(&wire.TxOut{Value: 49_000})

	handler, err := b.Finalize([]SignatureKind{NormalSig("assert")})
	require.NoError(t, err)

	handler.FillSignature(NormalSig("assert"), make([]byte, 64))

	checked, err := handler.Checked()
	require.NoError(t, err)

	encoded, err := checked.EncodeTx()
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
}

func TestKeyPathSighashIs32Bytes(t *testing.T) {
	pk := testKey(t)
	prevout := &wire.TxOut{Value: 100_000, PkScript: []byte{0x51, 0x20}}
	spendable := NewKeyPathSpendable(prevout, pk, NormalSig("nofn"), 0)

	b := NewBuilder(TypeMoveToVault)
	b.AddInput(NormalSig("nofn"), spendable)
	b.SetPrevOutPoint(0, wire.OutPoint{})
	b.AddOutput(&wire.TxOut{Value: 99_000})

	handler, err := b.Finalize([]SignatureKind{NormalSig("nofn")})
	require.NoError(t, err)

	hash1, err := handler.ComputeSighash(0, 0)
	require.NoError(t, err)
	require.Len(t, hash1, 32)
}
