package txsender

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/signer"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/ulogger"
)

// anchorInputVSize and feePayerInputVSize are rough virtual-size estimates
// for the two inputs a CPFP child spends (a P2A anchor input carries
// no witness, a taproot key-path input carries a 64/65-byte schnorr
// signature); childOverheadVSize covers the version/locktime/output
// bytes of the 1-in-1-out-plus-anchor child. These are deliberately
// conservative — PrefundFeePayer applies a further overallocation
// factor on top of them.
const (
	anchorInputVSize      = 45
	feePayerInputVSize    = 58
	childOverheadVSize    = 20
	defaultOverallocation = 3.0
)

// ChildVSizeEstimate is the CPFP child's own virtual size, exported so
// callers (and property-10 tests) can reconstruct the package-wide fee
// floor without duplicating this package's internal constants.
func ChildVSizeEstimate() int64 {
	return int64(anchorInputVSize + feePayerInputVSize + childOverheadVSize)
}

// SignatureKindFeePayer is the signature slot for the fee payer's
// key-path spend; anchorSigKind is the anchor input's placeholder slot
// (see BuildChildPackage).
var (
	SignatureKindFeePayer = txhandler.NormalSig("fee_payer")
	anchorSigKind         = txhandler.NormalSig("anchor")
)

// UTXOProvider selects a confirmed UTXO this node controls, at least
// minAmountSats, to fund a fee payer. A wallet or coin-selection
// component is an external collaborator (spec.md §1's Bitcoin RPC
// client is out of scope); this package only depends on the contract.
type UTXOProvider interface {
	SelectUTXO(ctx context.Context, minAmountSats int64) (outpoint wire.OutPoint, pkScript []byte, valueSats int64, err error)
}

// Broadcaster submits a finished package (parent + child) to the
// network. Grounded on teacher's util/distributor.Distributor, whose
// role (retry/backoff broadcast to multiple propagation servers) this
// package generalizes to a single Bitcoin-node package-relay call.
type Broadcaster interface {
	SubmitPackage(ctx context.Context, rawTxs [][]byte) error
}

// Option configures a TxSender, the same functional-options shape as
// util/distributor.Distributor and util/retry.SetOptions.
type Option func(*TxSender)

func WithRetryAttempts(n int) Option {
	return func(s *TxSender) { s.retryAttempts = n }
}

func WithBackoff(d time.Duration) Option {
	return func(s *TxSender) { s.backoff = d }
}

func WithOverallocationFactor(f float64) Option {
	return func(s *TxSender) { s.overallocation = f }
}

// TxSender prefunds fee payers and builds/broadcasts CPFP child
// packages for this repo's ephemeral P2A anchor outputs (spec.md §4.8).
type TxSender struct {
	logger        ulogger.Logger
	feeEstimator  FeeEstimator
	feePayerStore FeePayerStore
	utxoProvider  UTXOProvider
	broadcaster   Broadcaster
	actor         *signer.Actor

	retryAttempts  int
	backoff        time.Duration
	overallocation float64
}

// New wires a TxSender. Defaults mirror teacher's Distributor: one
// attempt, no backoff, unless overridden by an Option.
func New(logger ulogger.Logger, feeEstimator FeeEstimator, feePayerStore FeePayerStore, utxoProvider UTXOProvider, broadcaster Broadcaster, actor *signer.Actor, opts ...Option) *TxSender {
	s := &TxSender{
		logger:         logger,
		feeEstimator:   feeEstimator,
		feePayerStore:  feePayerStore,
		utxoProvider:   utxoProvider,
		broadcaster:    broadcaster,
		actor:          actor,
		retryAttempts:  1,
		overallocation: defaultOverallocation,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrefundFeePayer selects (and persists) a UTXO sized to cover the
// zero-fee parent (bumpedVSize) plus its CPFP child at the current
// feerate, overallocated by s.overallocation so a single prefund
// survives a few feerate spikes without needing to be re-run before
// every bump (spec.md §4.8 step 1: "sized 3 × bumped_weight ×
// feerate"; original_source supplement: "3x overallocation sizing").
// bumpedVSize is the parent's own virtual size, typically obtained via
// txhandler.VSizeFromRawTx on its final signed encoding.
func (s *TxSender) PrefundFeePayer(ctx context.Context, bumpedTxid [32]byte, bumpedVSize int64) (*FeePayerRow, error) {
	rate, err := s.feeEstimator.EstimateSmartFeeRate(ctx, 1)
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("txsender: estimate feerate: %v", err)
	}

	childVSize := ChildVSizeEstimate()
	minAmount := int64(float64(bumpedVSize+childVSize)*rate*s.overallocation) + 1

	outpoint, pkScript, value, err := s.utxoProvider.SelectUTXO(ctx, minAmount)
	if err != nil {
		return nil, bridgeerrors.NewBroadcastError("txsender: select fee payer utxo (need >= %d sats): %v", minAmount, err)
	}

	row := FeePayerRow{
		BumpedTxid:          bumpedTxid,
		FundingScriptPubKey: pkScript,
		FundingTxid:         [32]byte(outpoint.Hash),
		FundingVout:         outpoint.Index,
		AmountSats:          value,
	}
	if err := s.feePayerStore.Save(ctx, row); err != nil {
		return nil, err
	}

	s.logger.Infof("txsender: prefunded fee payer for %x: %d sats at %.2f sat/vB", bumpedTxid, value, rate)
	return &row, nil
}

// BuildChildPackage assembles the unsigned-then-signed CPFP child:
// input 0 spends the parent's anchor output (an "anyone can spend"
// path — the anchor carries no real spend condition per BIP "pay to
// anchor"), input 1 spends the prefunded fee payer via the actor's
// key-path signature, and the sole output returns change to
// changeScriptPubKey. The child's fee covers the whole package —
// parent plus child — at the current feerate (spec.md §4.8 step 3 /
// §8 property 10: "the package (T, child) pays ≥ feerate ×
// (weight(T) + weight(child))"). parentVSize is the zero-fee parent's
// own virtual size, typically obtained via txhandler.VSizeFromRawTx on
// its final signed encoding.
func (s *TxSender) BuildChildPackage(ctx context.Context, parentVSize int64, anchorOutPoint wire.OutPoint, anchorAmountSats int64, row FeePayerRow, changeScriptPubKey []byte) ([]byte, error) {
	rate, err := s.feeEstimator.EstimateSmartFeeRate(ctx, 1)
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("txsender: estimate feerate: %v", err)
	}

	childVSize := ChildVSizeEstimate()
	fee := int64(float64(parentVSize+childVSize) * rate)
	changeAmount := anchorAmountSats + row.AmountSats - fee
	if changeAmount <= 0 {
		return nil, bridgeerrors.NewConfigurationError("txsender: fee %d exceeds available %d sats", fee, anchorAmountSats+row.AmountSats)
	}

	b := txhandler.NewBuilder(txhandler.Type("CPFPChild"))
	anchorSpendable := txhandler.NewKeyPathSpendable(
		&wire.TxOut{Value: anchorAmountSats, PkScript: script.Anchor},
		nil,
		anchorSigKind,
		0,
	)
	b.AddInput(anchorSigKind, anchorSpendable)
	b.SetPrevOutPoint(0, anchorOutPoint)

	feePayerSpendable := txhandler.NewKeyPathSpendable(
		&wire.TxOut{Value: row.AmountSats, PkScript: row.FundingScriptPubKey},
		s.actor.XOnlyPublicKey(),
		SignatureKindFeePayer,
		0,
	)
	b.AddInput(SignatureKindFeePayer, feePayerSpendable)
	b.SetPrevOutPoint(1, wire.OutPoint{Hash: chainhash.Hash(row.FundingTxid), Index: row.FundingVout})

	b.AddOutput(&wire.TxOut{Value: changeAmount, PkScript: changeScriptPubKey})

	handler, err := b.Finalize([]txhandler.SignatureKind{SignatureKindFeePayer})
	if err != nil {
		return nil, err
	}

	// The anchor input carries no spend condition (BIP "pay to anchor":
	// any witness satisfies it), so its witness slot is filled with an
	// explicit empty push rather than left unset — EncodeTx treats a nil
	// signature as "not yet signed", not as "needs none".
	handler.FillSignature(anchorSigKind, []byte{})

	if err := s.actor.SignInput(handler, 1, SignatureKindFeePayer, txscript.SigHashDefault); err != nil {
		return nil, err
	}

	checked, err := handler.Checked()
	if err != nil {
		return nil, err
	}

	return checked.EncodeTx()
}

// SubmitWithRetry broadcasts rawTxs, retrying up to s.retryAttempts
// times with s.backoff between attempts — the same bounded-retry shape
// as teacher's util/retry.SetOptions drives for its callers.
func (s *TxSender) SubmitWithRetry(ctx context.Context, rawTxs [][]byte) error {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 && s.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}

		if err := s.broadcaster.SubmitPackage(ctx, rawTxs); err != nil {
			lastErr = err
			s.logger.Warnf("txsender: submit package attempt %d/%d failed: %v", attempt+1, s.retryAttempts, err)
			continue
		}
		return nil
	}

	return bridgeerrors.NewBroadcastError("txsender: submit package failed after %d attempts: %v", s.retryAttempts, lastErr)
}
