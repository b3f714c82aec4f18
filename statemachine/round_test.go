package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundStateMachineAdvancesOnMatchedTxids(t *testing.T) {
	ctx := context.Background()
	cache := NewBlockCache(16)

	roundTxid := [32]byte{1}
	kickoffTxid0 := [32]byte{2}
	kickoffTxid1 := [32]byte{3}
	readyTxid := [32]byte{4}

	rsm := NewRoundStateMachine(0, nil)
	require.Equal(t, RoundStateInitialCollateral, rsm.fsm.Current())

	expected := RoundExpectedTxids{
		RoundTxid:            roundTxid,
		KickoffTxids:         map[uint32][32]byte{0: kickoffTxid0, 1: kickoffTxid1},
		ReadyToReimburseTxid: readyTxid,
	}

	changed, _, err := rsm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.False(t, changed)

	cache.Advance(1, [][32]byte{roundTxid}, nil)
	changed, _, err = rsm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RoundStateRoundTx, rsm.fsm.Current())

	cache.Advance(2, [][32]byte{kickoffTxid0}, nil)
	changed, duties, err := rsm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RoundStateRoundTx, rsm.fsm.Current())
	require.Len(t, duties, 1)
	require.Equal(t, uint32(0), duties[0].OperatorIdx)
	require.Contains(t, duties[0].UsedKickoffs, uint32(0))

	cache.Advance(3, [][32]byte{readyTxid}, nil)
	changed, _, err = rsm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RoundStateReadyToReimburse, rsm.fsm.Current())

	nextRoundTxid := [32]byte{5}
	expected.RoundTxid = nextRoundTxid
	cache.Advance(4, [][32]byte{nextRoundTxid}, nil)
	changed, _, err = rsm.Tick(ctx, cache, expected)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RoundStateRoundTx, rsm.fsm.Current())
	require.Equal(t, uint32(1), rsm.RoundIdx())
}

func TestRoundStateMachineSnapshotRoundTrips(t *testing.T) {
	rsm := NewRoundStateMachine(7, nil)
	rsm.roundIdx = 3
	rsm.used[1] = true

	snap := rsm.Snapshot()
	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	var restored RoundSnapshot
	require.NoError(t, UnmarshalSnapshot(data, &restored))
	require.Equal(t, uint32(3), restored.RoundIdx)
	require.True(t, restored.UsedKickoffs[1])

	rebuilt := NewRoundStateMachine(7, &restored)
	require.Equal(t, uint32(3), rebuilt.RoundIdx())
	require.True(t, rebuilt.used[1])
}
