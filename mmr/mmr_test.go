package mmr

import (
	"crypto/sha256"
	"testing"

	"github.com/bridge-node/vault-bridge/circuit"
	"github.com/stretchr/testify/require"
)

func leaf(i byte) Hash256 {
	return sha256.Sum256([]byte{i})
}

// TestRootMatchesGuest is the cross-implementation half of property 4
// from spec.md §8: the native tree must agree with circuit.MMRGuest's
// root after every append, for any number of leaves.
func TestRootMatchesGuest(t *testing.T) {
	native := New()
	var guest circuit.MMRGuest

	for i := byte(0); i < 37; i++ {
		l := leaf(i)
		native.Append(l)
		guest.Append(l)

		require.Equal(t, guest.Root(), native.Root(), "root diverged after %d leaves", i+1)
		require.Equal(t, circuit.Popcount32(guest.Size), len(native.Peaks()))
		require.Equal(t, guest.Subroots, native.Peaks())
	}
}

// TestProofVerifiesForEveryLeaf is property 5: every leaf ever appended
// must produce a proof that verifies against the tree's current peaks.
func TestProofVerifiesForEveryLeaf(t *testing.T) {
	native := New()
	for i := byte(0); i < 23; i++ {
		native.Append(leaf(i))
	}

	for idx := uint32(0); idx < native.LeavesCount(); idx++ {
		proof, err := native.Prove(idx)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof), "proof for leaf %d failed to verify", idx)
	}
}

func TestProofRejectsTamperedLeaf(t *testing.T) {
	native := New()
	for i := byte(0); i < 9; i++ {
		native.Append(leaf(i))
	}

	proof, err := native.Prove(4)
	require.NoError(t, err)

	proof.Leaf = leaf(255)
	require.False(t, VerifyProof(proof))
}

func TestProveRejectsOutOfRangeIndex(t *testing.T) {
	native := New()
	native.Append(leaf(0))

	_, err := native.Prove(1)
	require.Error(t, err)
}

// TestSingleLeafRootIsTheLeafItself covers the degenerate one-peak case.
func TestSingleLeafRootIsTheLeafItself(t *testing.T) {
	native := New()
	l := leaf(1)
	native.Append(l)

	require.Equal(t, l, native.Root())
	require.Equal(t, []Hash256{l}, native.Peaks())
}
