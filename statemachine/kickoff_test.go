package statemachine

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/txgraph"
)

func testKickoffID(t *testing.T) txgraph.KickoffId {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return txgraph.KickoffId{OperatorXOnlyPK: priv.PubKey(), RoundIdx: 0, KickoffIdx: 0}
}

func TestKickoffStateMachineChallengeAssertDisproveTimeoutReimburse(t *testing.T) {
	ctx := context.Background()
	cache := NewBlockCache(16)
	id := testKickoffID(t)

	challengeTxid := [32]byte{1}
	assertStep0 := [32]byte{2}
	assertStep1 := [32]byte{3}
	disproveTimeoutTxid := [32]byte{4}
	reimburseTxid := [32]byte{5}

	expected := KickoffExpectedTxids{
		ChallengeTxid:        challengeTxid,
		ChallengeTimeoutTxid: [32]byte{99},
		AssertStepTxids:      map[int][32]byte{0: assertStep0, 1: assertStep1},
		AssertTimeoutTxids:   map[int][32]byte{},
		DisproveTxid:         [32]byte{98},
		DisproveTimeoutTxid:  disproveTimeoutTxid,
		ReimburseTxid:        reimburseTxid,
		NumAssertSteps:       2,
	}

	ksm := NewKickoffStateMachine(id, nil)
	require.Equal(t, KickoffStateStarted, ksm.Current())

	cache.Advance(1, [][32]byte{challengeTxid}, nil)
	changed, duties, err := ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateChallenged, ksm.Current())
	require.Len(t, duties, 1)

	cache.Advance(2, [][32]byte{assertStep0}, nil)
	changed, _, err = ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateAsserting, ksm.Current())

	cache.Advance(3, [][32]byte{assertStep1}, nil)
	changed, _, err = ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateAsserting, ksm.Current())

	changed, duties, err = ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateDisprovable, ksm.Current())
	require.Len(t, duties, 1)

	cache.Advance(4, [][32]byte{disproveTimeoutTxid}, nil)
	changed, duties, err = ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateReimbursable, ksm.Current())
	require.Len(t, duties, 1)

	cache.Advance(5, [][32]byte{reimburseTxid}, nil)
	changed, _, err = ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateReimbursed, ksm.Current())
	require.True(t, ksm.Terminal())
}

func TestKickoffStateMachineChallengeTimeoutSkipsToReimbursable(t *testing.T) {
	ctx := context.Background()
	cache := NewBlockCache(16)
	id := testKickoffID(t)

	challengeTimeoutTxid := [32]byte{7}
	expected := KickoffExpectedTxids{
		ChallengeTxid:        [32]byte{1},
		ChallengeTimeoutTxid: challengeTimeoutTxid,
		NumAssertSteps:       0,
	}

	ksm := NewKickoffStateMachine(id, nil)
	cache.Advance(1, [][32]byte{challengeTimeoutTxid}, nil)

	changed, _, err := ksm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, KickoffStateReimbursable, ksm.Current())
}
