package txsender

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// FeePayerRow is one prefunded UTXO set aside to CPFP-bump a specific
// anchor output, keyed the way spec.md's original_source supplement
// names: "(bumped_txid, funding_script_pubkey)".
type FeePayerRow struct {
	BumpedTxid         [32]byte
	FundingScriptPubKey []byte

	FundingTxid  [32]byte
	FundingVout  uint32
	AmountSats   int64

	Spent bool
}

// FeePayerStore persists fee-payer UTXOs, grounded on the same
// select-then-insert-or-update shape as statemachine.PgStateStore
// (itself grounded on stores/blockchain/sql/State.go), generalized to
// a two-column composite key.
type FeePayerStore interface {
	Save(ctx context.Context, row FeePayerRow) error
	Load(ctx context.Context, bumpedTxid [32]byte, fundingScriptPubKey []byte) (*FeePayerRow, error)
	MarkSpent(ctx context.Context, bumpedTxid [32]byte, fundingScriptPubKey []byte) error
}

// PgFeePayerStore is the Postgres-backed FeePayerStore.
type PgFeePayerStore struct {
	pool *pgxpool.Pool
}

// NewPgFeePayerStore wraps an already-configured pool. Schema:
//
//	CREATE TABLE fee_payer (
//	    bumped_txid           BYTEA NOT NULL,
//	    funding_script_pubkey BYTEA NOT NULL,
//	    funding_txid          BYTEA NOT NULL,
//	    funding_vout          INTEGER NOT NULL,
//	    amount_sats           BIGINT NOT NULL,
//	    spent                 BOOLEAN NOT NULL DEFAULT false,
//	    PRIMARY KEY (bumped_txid, funding_script_pubkey)
//	);
func NewPgFeePayerStore(pool *pgxpool.Pool) *PgFeePayerStore {
	return &PgFeePayerStore{pool: pool}
}

func (s *PgFeePayerStore) Save(ctx context.Context, row FeePayerRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fee_payer (bumped_txid, funding_script_pubkey, funding_txid, funding_vout, amount_sats, spent)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bumped_txid, funding_script_pubkey)
		DO UPDATE SET funding_txid = EXCLUDED.funding_txid, funding_vout = EXCLUDED.funding_vout,
		              amount_sats = EXCLUDED.amount_sats, spent = EXCLUDED.spent
	`, row.BumpedTxid[:], row.FundingScriptPubKey, row.FundingTxid[:], row.FundingVout, row.AmountSats, row.Spent)
	if err != nil {
		return bridgeerrors.NewPersistenceError("txsender: save fee payer row: %v", err)
	}
	return nil
}

func (s *PgFeePayerStore) Load(ctx context.Context, bumpedTxid [32]byte, fundingScriptPubKey []byte) (*FeePayerRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT funding_txid, funding_vout, amount_sats, spent FROM fee_payer
		WHERE bumped_txid = $1 AND funding_script_pubkey = $2
	`, bumpedTxid[:], fundingScriptPubKey)

	var fundingTxid []byte
	var vout uint32
	var amount int64
	var spent bool
	if err := row.Scan(&fundingTxid, &vout, &amount, &spent); err != nil {
		return nil, bridgeerrors.NewNotFoundError("txsender: no fee payer row for %x: %v", bumpedTxid, err)
	}

	out := &FeePayerRow{BumpedTxid: bumpedTxid, FundingScriptPubKey: fundingScriptPubKey, FundingVout: vout, AmountSats: amount, Spent: spent}
	copy(out.FundingTxid[:], fundingTxid)
	return out, nil
}

func (s *PgFeePayerStore) MarkSpent(ctx context.Context, bumpedTxid [32]byte, fundingScriptPubKey []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE fee_payer SET spent = true WHERE bumped_txid = $1 AND funding_script_pubkey = $2
	`, bumpedTxid[:], fundingScriptPubKey)
	if err != nil {
		return bridgeerrors.NewPersistenceError("txsender: mark fee payer spent: %v", err)
	}
	return nil
}
