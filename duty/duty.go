// Package duty implements the Duty Dispatcher / Owner contract (spec.md
// §4.9, component C9): an abstract role contract the state machines in
// package statemachine drive, without knowing which concrete operator,
// verifier, or watchtower process is on the other end.
package duty

import (
	"context"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/txgraph"
)

// Kind enumerates every Duty variant spec.md §4.9 names.
type Kind int

const (
	KindNewReadyToReimburse Kind = iota
	KindWatchtowerChallengeNeeded
	KindOperatorAckNeeded
	KindOperatorNackNeeded
	KindAssertNeeded
	KindDisproveNeeded
	KindReimburseAvailable
)

func (k Kind) String() string {
	switch k {
	case KindNewReadyToReimburse:
		return "new_ready_to_reimburse"
	case KindWatchtowerChallengeNeeded:
		return "watchtower_challenge_needed"
	case KindOperatorAckNeeded:
		return "operator_ack_needed"
	case KindOperatorNackNeeded:
		return "operator_nack_needed"
	case KindAssertNeeded:
		return "assert_needed"
	case KindDisproveNeeded:
		return "disprove_needed"
	case KindReimburseAvailable:
		return "reimburse_available"
	default:
		return "unknown"
	}
}

// Duty is the event a StateManager transition emits to an Owner. Only
// the fields relevant to Kind are populated, the same "tagged struct"
// shape package script uses for its leaf variants (spec.md §9's Design
// Note on tagged enums applies equally well here).
type Duty struct {
	Kind Kind

	KickoffID txgraph.KickoffId

	// NewReadyToReimburse.
	RoundIdx     uint32
	UsedKickoffs []uint32
	OperatorIdx  uint32

	// WatchtowerChallengeNeeded / OperatorAckNeeded / OperatorNackNeeded.
	WatchtowerIdx int

	// AssertNeeded.
	AssertStepIdx int

	// DisproveNeeded.
	DisproveLeafIndex int
}

// Role distinguishes which of the three participant kinds registered
// with a Dispatcher should receive a given Duty.
type Role int

const (
	RoleOperator Role = iota
	RoleVerifier
	RoleWatchtower
)

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RoleVerifier:
		return "verifier"
	case RoleWatchtower:
		return "watchtower"
	default:
		return "unknown"
	}
}

// Owner is the abstract role contract spec.md §4.9 describes:
// "create_txhandlers(ctx), handle_duty(duty)". Concrete operator/
// verifier/watchtower processes are external collaborators (spec.md
// §1's gRPC service wiring is out of scope); this package only
// contracts with the interface.
type Owner interface {
	// CreateTxHandlers builds (or fetches from cache) the full
	// txgraph.Graph for one kickoff attempt, the shared precondition
	// every HandleDuty call for that kickoff needs.
	CreateTxHandlers(ctx context.Context, kickoffID txgraph.KickoffId) (*txgraph.Graph, error)

	// HandleDuty reacts to one emitted Duty. A non-nil error does not
	// necessarily abort the block tick the duty was raised in (spec.md
	// §7: "a duty may be retried on the next block tick") — it is the
	// Dispatcher's caller's decision whether to retry or surface it.
	HandleDuty(ctx context.Context, d Duty) error
}

// Dispatcher routes a Duty to whichever Owner is registered for the
// Role the state machine decided should receive it.
type Dispatcher struct {
	owners map[Role]Owner
}

// NewDispatcher returns an empty Dispatcher; callers Register each
// role before driving any block ticks.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{owners: make(map[Role]Owner)}
}

// Register binds role to owner, replacing any previous registration.
func (d *Dispatcher) Register(role Role, owner Owner) {
	d.owners[role] = owner
}

// Owner returns the Owner registered for role, if any.
func (d *Dispatcher) Owner(role Role) (Owner, bool) {
	o, ok := d.owners[role]
	return o, ok
}

// Dispatch hands duty to role's registered Owner.
func (d *Dispatcher) Dispatch(ctx context.Context, role Role, dty Duty) error {
	owner, ok := d.owners[role]
	if !ok {
		return bridgeerrors.NewGraphBuildError("duty: no owner registered for role %s", role)
	}
	return owner.HandleDuty(ctx, dty)
}
