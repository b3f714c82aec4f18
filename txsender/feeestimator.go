// Package txsender implements the CPFP fee-bumping engine (spec.md
// §4.8, component C8): it prefunds a fee-payer UTXO for an anchor
// output, packages the anchor's owning transaction together with a
// child spending that fee payer, and broadcasts the package, retrying
// with backoff the way teacher's util/distributor.Distributor does
// for its propagation-server broadcasts.
package txsender

import (
	"context"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// FeeEstimator reports a current feerate in sat/vB. Concrete
// implementations talk to a Bitcoin RPC's estimatesmartfee (out of
// scope here per spec.md's Non-goals on the RPC client); this package
// only depends on the interface.
type FeeEstimator interface {
	EstimateSmartFeeRate(ctx context.Context, confTarget int) (satPerVByte float64, err error)
}

// StaticFeeEstimator always returns a fixed rate — the fallback
// spec.md's original_source supplement names ("1 sat/vB fallback when
// the estimator has no data"), and a convenient test double.
type StaticFeeEstimator struct {
	SatPerVByte float64
}

func (s StaticFeeEstimator) EstimateSmartFeeRate(_ context.Context, _ int) (float64, error) {
	if s.SatPerVByte <= 0 {
		return 1.0, nil
	}
	return s.SatPerVByte, nil
}

// FallbackFeeEstimator wraps a primary estimator and substitutes 1
// sat/vB whenever the primary errors, instead of failing the whole
// prefund operation over a transient RPC hiccup.
type FallbackFeeEstimator struct {
	Primary FeeEstimator
}

func (f FallbackFeeEstimator) EstimateSmartFeeRate(ctx context.Context, confTarget int) (float64, error) {
	rate, err := f.Primary.EstimateSmartFeeRate(ctx, confTarget)
	if err != nil {
		return 1.0, nil
	}
	if rate <= 0 {
		return 0, bridgeerrors.NewConfigurationError("txsender: estimator returned non-positive feerate %f", rate)
	}
	return rate, nil
}
