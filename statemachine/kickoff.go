package statemachine

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/duty"
	"github.com/bridge-node/vault-bridge/txgraph"
)

// Kickoff state names (spec.md §4.7: "Tracks challenge/assert/
// disprove/ack/nack, timeouts, and terminal reimburse vs burn
// outcomes").
const (
	KickoffStateStarted     = "started"
	KickoffStateChallenged  = "challenged"
	KickoffStateAsserting   = "asserting"
	KickoffStateDisprovable = "disprovable"
	KickoffStateReimbursable = "reimbursable"
	KickoffStateReimbursed  = "reimbursed" // terminal
	KickoffStateBurned      = "burned"     // terminal
)

const (
	KickoffEventChallengeSent      = "ChallengeSent"
	KickoffEventChallengeTimeout   = "ChallengeTimeout"
	KickoffEventAssertStepSent     = "AssertStepSent"
	KickoffEventAllAssertsPosted   = "AllAssertsPosted"
	KickoffEventAssertTimeout      = "AssertTimeout"
	KickoffEventDisproveSent       = "DisproveSent"
	KickoffEventDisproveTimeout    = "DisproveTimeout"
	KickoffEventReimburseSent      = "ReimburseSent"
)

// KickoffSnapshot is the JSON-serializable persisted form of a
// KickoffStateMachine.
type KickoffSnapshot struct {
	FSMState       string        `json:"fsm_state"`
	AssertedSteps  map[int]bool  `json:"asserted_steps"`
	WatchtowerAcks map[int]bool  `json:"watchtower_acks"`
}

// KickoffExpectedTxids is the set of precomputed txids the owner's
// graph builder produced for this kickoff attempt (spec.md §4.5 names
// every one of these transaction types); the state machine matches
// them against the BlockCache to decide which branch was actually
// taken on chain.
type KickoffExpectedTxids struct {
	ChallengeTxid        [32]byte
	ChallengeTimeoutTxid [32]byte

	AssertStepTxids    map[int][32]byte // MiniAssert[j]
	AssertTimeoutTxids map[int][32]byte // AssertTimeout[j]

	DisproveTxid        [32]byte
	DisproveTimeoutTxid [32]byte

	ReimburseTxid [32]byte

	WatchtowerChallengeTxids map[int][32]byte
	OperatorAckTxids         map[int][32]byte
	OperatorNackTxids        map[int][32]byte

	NumAssertSteps int
	NumWatchtowers int
}

// KickoffStateMachine is the per-kickoff state machine (spec.md §4.7).
type KickoffStateMachine struct {
	KickoffID txgraph.KickoffId

	fsm            *fsm.FSM
	asserted       map[int]bool
	watchtowerAcks map[int]bool
	matchers       []matcherEvent

	dirty bool
}

// NewKickoffStateMachine builds a machine for kickoffID, starting from
// snapshot (nil for a freshly-observed kickoff confirmation).
func NewKickoffStateMachine(kickoffID txgraph.KickoffId, snapshot *KickoffSnapshot) *KickoffStateMachine {
	ksm := &KickoffStateMachine{
		KickoffID:      kickoffID,
		asserted:       make(map[int]bool),
		watchtowerAcks: make(map[int]bool),
	}

	state := KickoffStateStarted
	if snapshot != nil {
		state = snapshot.FSMState
		if snapshot.AssertedSteps != nil {
			ksm.asserted = snapshot.AssertedSteps
		}
		if snapshot.WatchtowerAcks != nil {
			ksm.watchtowerAcks = snapshot.WatchtowerAcks
		}
	}

	ksm.fsm = fsm.NewFSM(
		state,
		fsm.Events{
			{Name: KickoffEventChallengeSent, Src: []string{KickoffStateStarted}, Dst: KickoffStateChallenged},
			{Name: KickoffEventChallengeTimeout, Src: []string{KickoffStateStarted}, Dst: KickoffStateReimbursable},
			{Name: KickoffEventAssertStepSent, Src: []string{KickoffStateChallenged, KickoffStateAsserting}, Dst: KickoffStateAsserting},
			{Name: KickoffEventAllAssertsPosted, Src: []string{KickoffStateAsserting}, Dst: KickoffStateDisprovable},
			{Name: KickoffEventAssertTimeout, Src: []string{KickoffStateChallenged, KickoffStateAsserting}, Dst: KickoffStateBurned},
			{Name: KickoffEventDisproveSent, Src: []string{KickoffStateDisprovable}, Dst: KickoffStateBurned},
			{Name: KickoffEventDisproveTimeout, Src: []string{KickoffStateDisprovable}, Dst: KickoffStateReimbursable},
			{Name: KickoffEventReimburseSent, Src: []string{KickoffStateReimbursable}, Dst: KickoffStateReimbursed},
		},
		fsm.Callbacks{
			KickoffEventAssertStepSent: func(_ context.Context, e *fsm.Event) {
				step := e.Args[0].(int)
				ksm.asserted[step] = true
				ksm.dirty = true
			},
			"enter_" + KickoffStateChallenged: func(_ context.Context, _ *fsm.Event) { ksm.dirty = true },
			"enter_" + KickoffStateDisprovable: func(_ context.Context, _ *fsm.Event) { ksm.dirty = true },
			"enter_" + KickoffStateReimbursable: func(_ context.Context, _ *fsm.Event) { ksm.dirty = true },
			"enter_" + KickoffStateReimbursed: func(_ context.Context, _ *fsm.Event) { ksm.dirty = true },
			"enter_" + KickoffStateBurned: func(_ context.Context, _ *fsm.Event) { ksm.dirty = true },
		},
	)

	return ksm
}

// Snapshot captures the machine's persistable state.
func (ksm *KickoffStateMachine) Snapshot() KickoffSnapshot {
	asserted := make(map[int]bool, len(ksm.asserted))
	for k, v := range ksm.asserted {
		asserted[k] = v
	}
	acks := make(map[int]bool, len(ksm.watchtowerAcks))
	for k, v := range ksm.watchtowerAcks {
		acks[k] = v
	}
	return KickoffSnapshot{FSMState: ksm.fsm.Current(), AssertedSteps: asserted, WatchtowerAcks: acks}
}

// Current is the machine's current state name.
func (ksm *KickoffStateMachine) Current() string { return ksm.fsm.Current() }

// Terminal reports whether the kickoff has reached Reimbursed or
// Burned — the StateManager retires terminal machines instead of
// re-ticking them forever.
func (ksm *KickoffStateMachine) Terminal() bool {
	s := ksm.fsm.Current()
	return s == KickoffStateReimbursed || s == KickoffStateBurned
}

func (ksm *KickoffStateMachine) Dirty() bool { return ksm.dirty }
func (ksm *KickoffStateMachine) ClearDirty() { ksm.dirty = false }

func (ksm *KickoffStateMachine) installMatchers(expected KickoffExpectedTxids) {
	switch ksm.fsm.Current() {
	case KickoffStateStarted:
		ksm.matchers = []matcherEvent{
			{SentTxMatcher{expected.ChallengeTxid}, KickoffEventChallengeSent, nil},
			{SentTxMatcher{expected.ChallengeTimeoutTxid}, KickoffEventChallengeTimeout, nil},
		}

	case KickoffStateChallenged, KickoffStateAsserting:
		ms := make([]matcherEvent, 0, expected.NumAssertSteps+1)
		for j := 0; j < expected.NumAssertSteps; j++ {
			if ksm.asserted[j] {
				continue
			}
			if txid, ok := expected.AssertStepTxids[j]; ok {
				ms = append(ms, matcherEvent{SentTxMatcher{txid}, KickoffEventAssertStepSent, []interface{}{j}})
			}
			if txid, ok := expected.AssertTimeoutTxids[j]; ok {
				ms = append(ms, matcherEvent{SentTxMatcher{txid}, KickoffEventAssertTimeout, nil})
			}
		}
		ksm.matchers = ms

	case KickoffStateDisprovable:
		ksm.matchers = []matcherEvent{
			{SentTxMatcher{expected.DisproveTxid}, KickoffEventDisproveSent, nil},
			{SentTxMatcher{expected.DisproveTimeoutTxid}, KickoffEventDisproveTimeout, nil},
		}

	case KickoffStateReimbursable:
		ksm.matchers = []matcherEvent{{SentTxMatcher{expected.ReimburseTxid}, KickoffEventReimburseSent, nil}}

	default:
		ksm.matchers = nil
	}
}

// Tick mirrors RoundStateMachine.Tick: recompute matchers for the
// current state, fire the first satisfied one, and surface whichever
// Duty that transition raises. All-asserts-posted is a pure function
// of the asserted set rather than an on-chain event, so it is checked
// separately, on a tick where no matcher fired — that is, on the tick
// after the last step fires.
func (ksm *KickoffStateMachine) Tick(ctx context.Context, cache *BlockCache, expected KickoffExpectedTxids) (bool, []duty.Duty, error) {
	ksm.installMatchers(expected)

	for _, me := range ksm.matchers {
		if !me.matcher.Check(cache) {
			continue
		}

		// A later AssertStepSent keeps the machine in Asserting; fsm
		// reports such a self-transition as NoTransitionError after
		// running its callbacks, which is a successful event here.
		if err := ksm.fsm.Event(ctx, me.event, me.args...); err != nil {
			var noTransition fsm.NoTransitionError
			if !errors.As(err, &noTransition) {
				return false, nil, bridgeerrors.NewNonConvergenceError("kickoff %+v: event %s: %v", ksm.KickoffID, me.event, err)
			}
		}

		duties := ksm.dutiesForTransition(me.event)
		return true, duties, nil
	}

	if ksm.fsm.Current() == KickoffStateAsserting && len(ksm.asserted) >= expected.NumAssertSteps {
		if err := ksm.fsm.Event(ctx, KickoffEventAllAssertsPosted); err != nil {
			return false, nil, bridgeerrors.NewNonConvergenceError("kickoff %+v: event %s: %v", ksm.KickoffID, KickoffEventAllAssertsPosted, err)
		}
		return true, []duty.Duty{{Kind: duty.KindDisproveNeeded, KickoffID: ksm.KickoffID}}, nil
	}

	return false, nil, nil
}

func (ksm *KickoffStateMachine) dutiesForTransition(event string) []duty.Duty {
	switch event {
	case KickoffEventChallengeSent:
		return []duty.Duty{{Kind: duty.KindAssertNeeded, KickoffID: ksm.KickoffID, AssertStepIdx: 0}}
	case KickoffEventDisproveTimeout, KickoffEventChallengeTimeout:
		return []duty.Duty{{Kind: duty.KindReimburseAvailable, KickoffID: ksm.KickoffID}}
	default:
		return nil
	}
}

// RecordWatchtowerAck/Nack update the per-watchtower ack track
// independently of the main fsm, since an individual watchtower's
// ack/nack outcome never gates the kickoff's own terminal state
// (spec.md §4.5: the nack path only burns that watchtower's own
// connector).
func (ksm *KickoffStateMachine) RecordWatchtowerAck(watchtowerIdx int) {
	ksm.watchtowerAcks[watchtowerIdx] = true
	ksm.dirty = true
}

func (ksm *KickoffStateMachine) WatchtowerAcked(watchtowerIdx int) bool {
	return ksm.watchtowerAcks[watchtowerIdx]
}
