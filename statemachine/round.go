package statemachine

import (
	"context"
	"errors"
	"sort"

	"github.com/looplab/fsm"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/duty"
)

// Round state names and event names (spec.md §4.7: "InitialCollateral →
// RoundTx{idx, used_kickoffs} → ReadyToReimburse{idx} →
// RoundTx{idx+1, ∅}").
const (
	RoundStateInitialCollateral = "initial_collateral"
	RoundStateRoundTx           = "round_tx"
	RoundStateReadyToReimburse  = "ready_to_reimburse"

	RoundEventRoundSent            = "RoundSent"
	RoundEventKickoffUtxoUsed      = "KickoffUtxoUsed"
	RoundEventReadyToReimburseSent = "ReadyToReimburseSent"
)

// RoundSnapshot is the JSON-serializable form a RoundStateMachine is
// persisted as between block ticks (spec.md §3: "State machines are
// persisted as JSON blobs").
type RoundSnapshot struct {
	FSMState     string          `json:"fsm_state"`
	RoundIdx     uint32          `json:"round_idx"`
	UsedKickoffs map[uint32]bool `json:"used_kickoffs"`
}

// RoundExpectedTxids is the set of txids the owner's graph builder
// computed for the round currently in flight; RoundStateMachine
// matches these against the BlockCache rather than recomputing them
// itself, since the expected txid depends on signing material this
// package never holds (spec.md §4.5/§4.6 own that).
type RoundExpectedTxids struct {
	RoundTxid             [32]byte
	KickoffTxids          map[uint32][32]byte
	ReadyToReimburseTxid  [32]byte
}

type matcherEvent struct {
	matcher Matcher
	event   string
	args    []interface{}
}

// RoundStateMachine is the per-operator collateral-cycle state machine
// (spec.md §4.7).
type RoundStateMachine struct {
	OperatorIdx uint32

	fsm      *fsm.FSM
	roundIdx uint32
	used     map[uint32]bool
	matchers []matcherEvent

	dirty bool
}

// NewRoundStateMachine builds a machine starting from snapshot (nil
// for a brand-new operator, whose first state is InitialCollateral).
func NewRoundStateMachine(operatorIdx uint32, snapshot *RoundSnapshot) *RoundStateMachine {
	rsm := &RoundStateMachine{OperatorIdx: operatorIdx, used: make(map[uint32]bool)}

	state := RoundStateInitialCollateral
	if snapshot != nil {
		state = snapshot.FSMState
		rsm.roundIdx = snapshot.RoundIdx
		if snapshot.UsedKickoffs != nil {
			rsm.used = snapshot.UsedKickoffs
		}
	}

	rsm.fsm = fsm.NewFSM(
		state,
		fsm.Events{
			{Name: RoundEventRoundSent, Src: []string{RoundStateInitialCollateral, RoundStateReadyToReimburse}, Dst: RoundStateRoundTx},
			{Name: RoundEventKickoffUtxoUsed, Src: []string{RoundStateRoundTx}, Dst: RoundStateRoundTx},
			{Name: RoundEventReadyToReimburseSent, Src: []string{RoundStateRoundTx}, Dst: RoundStateReadyToReimburse},
		},
		fsm.Callbacks{
			"enter_" + RoundStateRoundTx: func(_ context.Context, e *fsm.Event) {
				if e.Event == RoundEventRoundSent && e.Src == RoundStateReadyToReimburse {
					rsm.roundIdx++
				}
				if e.Event == RoundEventRoundSent {
					rsm.used = make(map[uint32]bool)
				}
				rsm.dirty = true
			},
			RoundEventKickoffUtxoUsed: func(_ context.Context, e *fsm.Event) {
				k := e.Args[0].(uint32)
				rsm.used[k] = true
				rsm.dirty = true
			},
			"enter_" + RoundStateReadyToReimburse: func(_ context.Context, _ *fsm.Event) {
				rsm.dirty = true
			},
		},
	)

	return rsm
}

// Snapshot captures the machine's persistable state.
func (rsm *RoundStateMachine) Snapshot() RoundSnapshot {
	used := make(map[uint32]bool, len(rsm.used))
	for k, v := range rsm.used {
		used[k] = v
	}
	return RoundSnapshot{FSMState: rsm.fsm.Current(), RoundIdx: rsm.roundIdx, UsedKickoffs: used}
}

// RoundIdx is the round currently in flight.
func (rsm *RoundStateMachine) RoundIdx() uint32 { return rsm.roundIdx }

// Dirty reports whether state has changed since the last ClearDirty.
func (rsm *RoundStateMachine) Dirty() bool { return rsm.dirty }

// ClearDirty resets the dirty flag after a successful persistence save.
func (rsm *RoundStateMachine) ClearDirty() { rsm.dirty = false }

func usedKickoffList(used map[uint32]bool) []uint32 {
	out := make([]uint32, 0, len(used))
	for k, v := range used {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// installMatchers recomputes the matcher set for the machine's current
// state (spec.md §4.7: "On entry to RoundTx, the machine computes
// expected txids and installs Matchers").
func (rsm *RoundStateMachine) installMatchers(expected RoundExpectedTxids) {
	switch rsm.fsm.Current() {
	case RoundStateInitialCollateral, RoundStateReadyToReimburse:
		rsm.matchers = []matcherEvent{{SentTxMatcher{expected.RoundTxid}, RoundEventRoundSent, nil}}

	case RoundStateRoundTx:
		ms := make([]matcherEvent, 0, len(expected.KickoffTxids)+1)
		for k, txid := range expected.KickoffTxids {
			if rsm.used[k] {
				continue
			}
			ms = append(ms, matcherEvent{SentTxMatcher{txid}, RoundEventKickoffUtxoUsed, []interface{}{k}})
		}
		ms = append(ms, matcherEvent{SentTxMatcher{expected.ReadyToReimburseTxid}, RoundEventReadyToReimburseSent, nil})
		rsm.matchers = ms

	default:
		rsm.matchers = nil
	}
}

// Tick recomputes matchers against the current state and fires the
// first satisfied one, returning whether the machine changed and any
// Duty the transition raises. A machine fires at most one event per
// Tick — the StateManager's stabilization loop calls Tick again on the
// next pass so a single block that satisfies several matchers still
// converges within the iteration cap.
func (rsm *RoundStateMachine) Tick(ctx context.Context, cache *BlockCache, expected RoundExpectedTxids) (bool, []duty.Duty, error) {
	rsm.installMatchers(expected)

	for _, me := range rsm.matchers {
		if !me.matcher.Check(cache) {
			continue
		}

		// KickoffUtxoUsed keeps the machine in RoundTx; fsm reports such
		// a self-transition as NoTransitionError after running its
		// callbacks, which is a successful event here.
		if err := rsm.fsm.Event(ctx, me.event, me.args...); err != nil {
			var noTransition fsm.NoTransitionError
			if !errors.As(err, &noTransition) {
				return false, nil, bridgeerrors.NewNonConvergenceError("round operator %d: event %s: %v", rsm.OperatorIdx, me.event, err)
			}
		}

		var duties []duty.Duty
		if me.event == RoundEventKickoffUtxoUsed && len(rsm.used) >= 1 {
			duties = []duty.Duty{{
				Kind:         duty.KindNewReadyToReimburse,
				RoundIdx:     rsm.roundIdx,
				UsedKickoffs: usedKickoffList(rsm.used),
				OperatorIdx:  rsm.OperatorIdx,
			}}
		}
		return true, duties, nil
	}

	return false, nil, nil
}
