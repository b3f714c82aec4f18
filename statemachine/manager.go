package statemachine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/duty"
	"github.com/bridge-node/vault-bridge/txgraph"
	"github.com/bridge-node/vault-bridge/ulogger"
)

// MaxConvergenceIterations bounds the stabilization loop (spec.md
// §4.7: "Hard limit: 500 iterations ⇒ error").
const MaxConvergenceIterations = 500

const (
	ownerTypeRound   = "round"
	ownerTypeKickoff = "kickoff"
)

func roundIdentifierKey(operatorIdx uint32) string {
	return fmt.Sprintf("operator:%d", operatorIdx)
}

func kickoffIdentifierKey(id txgraph.KickoffId) string {
	pk := hex.EncodeToString(schnorr.SerializePubKey(id.OperatorXOnlyPK))
	return fmt.Sprintf("%s:%d:%d", pk, id.RoundIdx, id.KickoffIdx)
}

// ExpectedTxidsProvider supplies the expected-txid tables a machine
// matches against, computed by the caller's graph builder + signer
// (this package never signs or assembles transactions itself — that is
// C5/C6's business).
type ExpectedTxidsProvider interface {
	RoundExpected(operatorIdx uint32, roundIdx uint32) (RoundExpectedTxids, error)
	KickoffExpected(id txgraph.KickoffId) (KickoffExpectedTxids, error)
}

// StateManager drives every Round and Kickoff machine from confirmed
// blocks (spec.md §4.7's "Block processing loop").
type StateManager struct {
	logger     ulogger.Logger
	store      StateStore
	cache      *BlockCache
	dispatcher *duty.Dispatcher
	expected   ExpectedTxidsProvider

	mu       sync.Mutex
	rounds   map[string]*RoundStateMachine
	kickoffs map[string]*KickoffStateMachine

	lastProcessedHeight uint32
}

// NewStateManager wires a StateManager. cacheCapacity <= 0 uses
// DefaultBlockCacheCapacity.
func NewStateManager(logger ulogger.Logger, store StateStore, dispatcher *duty.Dispatcher, expected ExpectedTxidsProvider, cacheCapacity int) *StateManager {
	return &StateManager{
		logger:     logger,
		store:      store,
		cache:      NewBlockCache(cacheCapacity),
		dispatcher: dispatcher,
		expected:   expected,
		rounds:     make(map[string]*RoundStateMachine),
		kickoffs:   make(map[string]*KickoffStateMachine),
	}
}

// RegisterRound installs (or replaces) the machine tracking operatorIdx's
// round chain, normally right after loading it from persistence.
func (m *StateManager) RegisterRound(rsm *RoundStateMachine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[roundIdentifierKey(rsm.OperatorIdx)] = rsm
}

// RegisterKickoff installs (or replaces) the machine tracking a single
// kickoff attempt. New kickoffs are typically spawned here once a
// Kickoff transaction is first observed confirmed.
func (m *StateManager) RegisterKickoff(ksm *KickoffStateMachine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kickoffs[kickoffIdentifierKey(ksm.KickoffID)] = ksm
}

// LastProcessedHeight is the height through which every machine has
// already converged.
func (m *StateManager) LastProcessedHeight() uint32 { return m.lastProcessedHeight }

// ProcessBlockParallel implements spec.md §4.7's five-step loop:
// update the cache, run every machine in parallel per iteration,
// re-iterate to a fixpoint (bounded by MaxConvergenceIterations), then
// persist dirty machines and bump the processed-height cursor.
func (m *StateManager) ProcessBlockParallel(ctx context.Context, height uint32, confirmedTxids [][32]byte, spentOutpoints []wire.OutPoint) error {
	m.cache.Advance(height, confirmedTxids, spentOutpoints)

	for iteration := 0; ; iteration++ {
		if iteration >= MaxConvergenceIterations {
			return m.nonConvergenceError()
		}

		changed, err := m.runOnePass(ctx)
		if err != nil {
			return err
		}
		if !changed {
			break
		}
	}

	if err := m.persistDirty(ctx); err != nil {
		return err
	}

	m.lastProcessedHeight = height
	return m.store.SetLastProcessedHeight(ctx, height)
}

func (m *StateManager) nonConvergenceError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offending := make([]string, 0, len(m.rounds)+len(m.kickoffs))
	for key, rsm := range m.rounds {
		offending = append(offending, fmt.Sprintf("round[%s]=%s", key, rsm.fsm.Current()))
	}
	for key, ksm := range m.kickoffs {
		offending = append(offending, fmt.Sprintf("kickoff[%s]=%s", key, ksm.Current()))
	}
	return bridgeerrors.NewNonConvergenceError("statemachine: did not converge within %d iterations: %v", MaxConvergenceIterations, offending)
}

// runOnePass runs every machine's Tick concurrently via errgroup
// (spec.md's DOMAIN STACK: "golang.org/x/sync/errgroup... parallel
// per-machine block-tick fan-out"), collects which machines changed
// state, and dispatches any Duty a transition raised.
func (m *StateManager) runOnePass(ctx context.Context) (bool, error) {
	m.mu.Lock()
	rounds := make([]*RoundStateMachine, 0, len(m.rounds))
	for _, r := range m.rounds {
		rounds = append(rounds, r)
	}
	kickoffs := make([]*KickoffStateMachine, 0, len(m.kickoffs))
	for _, k := range m.kickoffs {
		if !k.Terminal() {
			kickoffs = append(kickoffs, k)
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	changed := false

	for _, rsm := range rounds {
		rsm := rsm
		g.Go(func() error {
			expected, err := m.expected.RoundExpected(rsm.OperatorIdx, rsm.RoundIdx())
			if err != nil {
				return err
			}
			didChange, duties, err := rsm.Tick(gctx, m.cache, expected)
			if err != nil {
				return err
			}
			if didChange {
				mu.Lock()
				changed = true
				mu.Unlock()
				m.dispatchAll(gctx, duty.RoleOperator, duties)
			}
			return nil
		})
	}

	for _, ksm := range kickoffs {
		ksm := ksm
		g.Go(func() error {
			expected, err := m.expected.KickoffExpected(ksm.KickoffID)
			if err != nil {
				return err
			}
			didChange, duties, err := ksm.Tick(gctx, m.cache, expected)
			if err != nil {
				return err
			}
			if didChange {
				mu.Lock()
				changed = true
				mu.Unlock()
				m.dispatchAll(gctx, duty.RoleOperator, duties)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return changed, nil
}

// dispatchAll best-effort dispatches every duty, logging (not aborting
// the block tick on) a handler failure — spec.md §7: "a duty may be
// retried on the next block tick".
func (m *StateManager) dispatchAll(ctx context.Context, role duty.Role, duties []duty.Duty) {
	for _, d := range duties {
		if err := m.dispatcher.Dispatch(ctx, role, d); err != nil {
			m.logger.Warnf("statemachine: duty %s dispatch failed, will retry next tick: %v", d.Kind, err)
		}
	}
}

func (m *StateManager) persistDirty(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, rsm := range m.rounds {
		if !rsm.Dirty() {
			continue
		}
		data, err := MarshalSnapshot(rsm.Snapshot())
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, StateRow{OwnerType: ownerTypeRound, IdentifierKey: key, StateJSON: data, BlockHeight: m.cache.Height()}); err != nil {
			return err
		}
		rsm.ClearDirty()
	}

	for key, ksm := range m.kickoffs {
		if !ksm.Dirty() {
			continue
		}
		data, err := MarshalSnapshot(ksm.Snapshot())
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, StateRow{OwnerType: ownerTypeKickoff, IdentifierKey: key, StateJSON: data, BlockHeight: m.cache.Height()}); err != nil {
			return err
		}
		ksm.ClearDirty()
	}

	return nil
}

// LoadRound restores a RoundStateMachine for operatorIdx from
// persistence, replaying from its last saved snapshot, or starts a
// fresh InitialCollateral machine if none exists yet (spec.md §4.7:
// "on restart, machines are deserialized, reinitialized with a
// context, and the loop replays from the last persisted height
// forward").
func (m *StateManager) LoadRound(ctx context.Context, operatorIdx uint32) (*RoundStateMachine, error) {
	key := roundIdentifierKey(operatorIdx)
	row, err := m.store.Load(ctx, ownerTypeRound, key)
	if bridgeerrors.Is(err, bridgeerrors.ERR_NOT_FOUND) {
		rsm := NewRoundStateMachine(operatorIdx, nil)
		m.RegisterRound(rsm)
		return rsm, nil
	}
	if err != nil {
		return nil, err
	}

	var snap RoundSnapshot
	if err := UnmarshalSnapshot(row.StateJSON, &snap); err != nil {
		return nil, err
	}
	rsm := NewRoundStateMachine(operatorIdx, &snap)
	m.RegisterRound(rsm)
	return rsm, nil
}

// LoadKickoff is LoadRound's counterpart for a single kickoff attempt.
func (m *StateManager) LoadKickoff(ctx context.Context, id txgraph.KickoffId) (*KickoffStateMachine, error) {
	key := kickoffIdentifierKey(id)
	row, err := m.store.Load(ctx, ownerTypeKickoff, key)
	if bridgeerrors.Is(err, bridgeerrors.ERR_NOT_FOUND) {
		ksm := NewKickoffStateMachine(id, nil)
		m.RegisterKickoff(ksm)
		return ksm, nil
	}
	if err != nil {
		return nil, err
	}

	var snap KickoffSnapshot
	if err := UnmarshalSnapshot(row.StateJSON, &snap); err != nil {
		return nil, err
	}
	ksm := NewKickoffStateMachine(id, &snap)
	m.RegisterKickoff(ksm)
	return ksm, nil
}
