package statemachine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// StateRow is the persisted form of one machine's state (spec.md §6:
// "State-machine rows: (owner_type, state_json, identifier_json,
// block_height)").
type StateRow struct {
	OwnerType     string
	IdentifierKey string // caller-chosen stable key, e.g. hex(operator xonly pk) or a KickoffId encoding
	StateJSON     []byte
	BlockHeight   uint32
}

// StateStore persists and loads machine snapshots, generalizing the
// teacher's stores/blockchain/sql.State's single (key -> data) blob row
// to a (owner_type, identifier) -> (state_json, block_height) table
// (spec.md §4.7).
type StateStore interface {
	Load(ctx context.Context, ownerType, identifierKey string) (*StateRow, error)
	Save(ctx context.Context, row StateRow) error

	LastProcessedHeight(ctx context.Context) (uint32, error)
	SetLastProcessedHeight(ctx context.Context, height uint32) error
}

// PgStateStore is the Postgres-backed StateStore, grounded on the
// teacher's stores/blockchain/sql.State.go GetState/SetState
// select-then-insert-or-update pattern over a jackc/pgx/v5 pool.
type PgStateStore struct {
	pool *pgxpool.Pool
}

// NewPgStateStore wraps an already-configured pool. Schema/migration
// tooling is out of scope (spec.md §1); the caller is expected to have
// created a table shaped like:
//
//	CREATE TABLE protocol_state (
//	    owner_type     TEXT NOT NULL,
//	    identifier_key TEXT NOT NULL,
//	    state_json     BYTEA NOT NULL,
//	    block_height   BIGINT NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (owner_type, identifier_key)
//	);
//	CREATE TABLE protocol_cursor (
//	    id                     BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
//	    last_processed_height  BIGINT NOT NULL
//	);
func NewPgStateStore(pool *pgxpool.Pool) *PgStateStore {
	return &PgStateStore{pool: pool}
}

func (s *PgStateStore) Load(ctx context.Context, ownerType, identifierKey string) (*StateRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT state_json, block_height FROM protocol_state WHERE owner_type = $1 AND identifier_key = $2`,
		ownerType, identifierKey)

	var stateJSON []byte
	var height uint32
	if err := row.Scan(&stateJSON, &height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bridgeerrors.NewNotFoundError("statemachine: no persisted state for %s/%s", ownerType, identifierKey)
		}
		return nil, bridgeerrors.NewPersistenceError("statemachine: load %s/%s: %v", ownerType, identifierKey, err)
	}

	return &StateRow{OwnerType: ownerType, IdentifierKey: identifierKey, StateJSON: stateJSON, BlockHeight: height}, nil
}

func (s *PgStateStore) Save(ctx context.Context, row StateRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO protocol_state (owner_type, identifier_key, state_json, block_height, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (owner_type, identifier_key)
		DO UPDATE SET state_json = EXCLUDED.state_json, block_height = EXCLUDED.block_height, updated_at = now()
	`, row.OwnerType, row.IdentifierKey, row.StateJSON, row.BlockHeight)
	if err != nil {
		return bridgeerrors.NewPersistenceError("statemachine: save %s/%s: %v", row.OwnerType, row.IdentifierKey, err)
	}
	return nil
}

func (s *PgStateStore) LastProcessedHeight(ctx context.Context) (uint32, error) {
	row := s.pool.QueryRow(ctx, `SELECT last_processed_height FROM protocol_cursor WHERE id = true`)
	var height uint32
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil // no cursor persisted yet: start from zero, per spec.md §5's replay-from-last-persisted-height design
		}
		return 0, bridgeerrors.NewPersistenceError("statemachine: read cursor: %v", err)
	}
	return height, nil
}

func (s *PgStateStore) SetLastProcessedHeight(ctx context.Context, height uint32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO protocol_cursor (id, last_processed_height) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE SET last_processed_height = EXCLUDED.last_processed_height
	`, height)
	if err != nil {
		return bridgeerrors.NewPersistenceError("statemachine: set cursor: %v", err)
	}
	return nil
}

// MarshalSnapshot and UnmarshalSnapshot are small helpers every caller
// of Save/Load goes through so the JSON encoding lives in one place.
func MarshalSnapshot(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, bridgeerrors.NewPersistenceError("statemachine: marshal snapshot: %v", err)
	}
	return b, nil
}

func UnmarshalSnapshot(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return bridgeerrors.NewPersistenceError("statemachine: unmarshal snapshot: %v", err)
	}
	return nil
}
