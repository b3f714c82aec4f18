package script

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/winternitz"
)

func testKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestCheckSigScript(t *testing.T) {
	leaf := NewCheckSig(testKey(t))
	b, err := leaf.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	_, err = leaf.GenerateWitness(WitnessInput{Signature: make([]byte, 64)})
	require.NoError(t, err)

	_, err = leaf.GenerateWitness(WitnessInput{})
	require.Error(t, err)
}

func TestTimelockScriptWithAndWithoutKey(t *testing.T) {
	pk := testKey(t)
	withKey := NewTimelock(pk, 144)
	b, err := withKey.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	anyoneCanSpend := NewTimelock(nil, 1)
	b2, err := anyoneCanSpend.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b2)
	require.NotEqual(t, b, b2)

	w, err := anyoneCanSpend.GenerateWitness(WitnessInput{})
	require.NoError(t, err)
	require.Empty(t, w)
}

func TestPreimageRevealScript(t *testing.T) {
	leaf := NewPreimageReveal(testKey(t), [20]byte{1, 2, 3})
	b, err := leaf.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	w, err := leaf.GenerateWitness(WitnessInput{Preimage: []byte("secret"), Signature: make([]byte, 64)})
	require.NoError(t, err)
	require.Len(t, w, 2)
}

func TestDepositScript(t *testing.T) {
	leaf := NewDeposit(testKey(t), [20]byte{0xaa}, 100_000)
	b, err := leaf.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)
}

func TestWinternitzCommitScriptBuilds(t *testing.T) {
	params := winternitz.Params{MessageLenBytes: 32}
	sk := winternitz.DeriveSecretKey([32]byte{1}, []byte("path"), params)
	leaf := NewWinternitzCommit(testKey(t), sk.PublicKey(), params)

	b, err := leaf.ScriptBytes()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	msg := make([]byte, 32)
	sig, err := sk.Sign(msg, params)
	require.NoError(t, err)

	w, err := leaf.GenerateWitness(WitnessInput{Signature: make([]byte, 64), WinternitzSig: sig})
	require.NoError(t, err)
	require.Len(t, w, len(sig.Reveals)+1)
}

func TestAnchorScriptLiteral(t *testing.T) {
	require.Equal(t, []byte{0x51, 0x02, 0x4e, 0x73}, Anchor)
}

func TestOpReturn(t *testing.T) {
	b, err := OpReturn([]byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, b)
}
