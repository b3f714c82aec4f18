package txsender

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bridge-node/vault-bridge/chaincfg"
	"github.com/bridge-node/vault-bridge/signer"
	"github.com/bridge-node/vault-bridge/ulogger"
)

type memFeePayerStore struct {
	rows map[string]FeePayerRow
}

func newMemFeePayerStore() *memFeePayerStore { return &memFeePayerStore{rows: map[string]FeePayerRow{}} }

func (m *memFeePayerStore) key(bumpedTxid [32]byte, pkScript []byte) string {
	return string(bumpedTxid[:]) + "|" + string(pkScript)
}

func (m *memFeePayerStore) Save(_ context.Context, row FeePayerRow) error {
	m.rows[m.key(row.BumpedTxid, row.FundingScriptPubKey)] = row
	return nil
}

func (m *memFeePayerStore) Load(_ context.Context, bumpedTxid [32]byte, pkScript []byte) (*FeePayerRow, error) {
	row, ok := m.rows[m.key(bumpedTxid, pkScript)]
	if !ok {
		return nil, errors.New("not found")
	}
	return &row, nil
}

func (m *memFeePayerStore) MarkSpent(_ context.Context, bumpedTxid [32]byte, pkScript []byte) error {
	row := m.rows[m.key(bumpedTxid, pkScript)]
	row.Spent = true
	m.rows[m.key(bumpedTxid, pkScript)] = row
	return nil
}

type fixedUTXOProvider struct {
	outpoint wire.OutPoint
	pkScript []byte
	value    int64
}

func (f fixedUTXOProvider) SelectUTXO(_ context.Context, minAmountSats int64) (wire.OutPoint, []byte, int64, error) {
	if f.value < minAmountSats {
		return wire.OutPoint{}, nil, 0, errors.New("no utxo large enough")
	}
	return f.outpoint, f.pkScript, f.value, nil
}

type recordingBroadcaster struct {
	failuresBeforeSuccess int
	calls                 int
	lastPackage           [][]byte
}

func (b *recordingBroadcaster) SubmitPackage(_ context.Context, rawTxs [][]byte) error {
	b.calls++
	if b.calls <= b.failuresBeforeSuccess {
		return errors.New("propagation server unavailable")
	}
	b.lastPackage = rawTxs
	return nil
}

func newTestSigner(t *testing.T) (*signer.Actor, []byte) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	actor := signer.New(priv, [32]byte{9}, chaincfg.Regtest)

	pkScript := append([]byte{0x51, 0x20}, priv.PubKey().SerializeCompressed()[1:]...)
	return actor, pkScript
}

func TestPrefundFeePayerSizesForOverallocatedFeerate(t *testing.T) {
	ctx := context.Background()
	actor, pkScript := newTestSigner(t)

	utxo := fixedUTXOProvider{
		outpoint: wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0},
		pkScript: pkScript,
		value:    100_000,
	}
	store := newMemFeePayerStore()
	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: 10}, store, utxo, &recordingBroadcaster{}, actor)

	bumpedTxid := [32]byte{7}
	row, err := sender.PrefundFeePayer(ctx, bumpedTxid, 200)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), row.AmountSats)

	loaded, err := store.Load(ctx, bumpedTxid, pkScript)
	require.NoError(t, err)
	require.Equal(t, row.FundingTxid, loaded.FundingTxid)
}

func TestPrefundFeePayerFailsWhenNoUTXOIsLargeEnough(t *testing.T) {
	ctx := context.Background()
	actor, pkScript := newTestSigner(t)

	utxo := fixedUTXOProvider{outpoint: wire.OutPoint{}, pkScript: pkScript, value: 10}
	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: 50}, newMemFeePayerStore(), utxo, &recordingBroadcaster{}, actor)

	_, err := sender.PrefundFeePayer(ctx, [32]byte{1}, 200)
	require.Error(t, err)
}

func TestBuildChildPackageSignsFeePayerInput(t *testing.T) {
	ctx := context.Background()
	actor, pkScript := newTestSigner(t)

	row := FeePayerRow{
		BumpedTxid:          [32]byte{1},
		FundingScriptPubKey: pkScript,
		FundingTxid:         [32]byte{2},
		FundingVout:         0,
		AmountSats:          50_000,
	}

	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: 5}, newMemFeePayerStore(), fixedUTXOProvider{}, &recordingBroadcaster{}, actor)

	anchorOutPoint := wire.OutPoint{Hash: chainhash.Hash{3}, Index: 0}
	raw, err := sender.BuildChildPackage(ctx, 150, anchorOutPoint, 240, row, pkScript)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))
	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 1)
	require.NotEmpty(t, tx.TxIn[1].Witness)
}

// TestBuildChildPackageFeeCoversParentWeight is property 10 (spec.md
// §8): the package fee must scale with the parent's own weight, not
// just the child's. A parentVSize that never reached the fee
// calculation would produce the same change amount regardless of how
// large the parent is — this test catches that regression directly.
func TestBuildChildPackageFeeCoversParentWeight(t *testing.T) {
	ctx := context.Background()
	actor, pkScript := newTestSigner(t)

	row := FeePayerRow{
		BumpedTxid:          [32]byte{1},
		FundingScriptPubKey: pkScript,
		FundingTxid:         [32]byte{2},
		FundingVout:         0,
		AmountSats:          50_000,
	}

	const rate = 5.0
	const anchorAmountSats = 240
	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: rate}, newMemFeePayerStore(), fixedUTXOProvider{}, &recordingBroadcaster{}, actor)
	anchorOutPoint := wire.OutPoint{Hash: chainhash.Hash{3}, Index: 0}

	parentVSize := int64(300)
	raw, err := sender.BuildChildPackage(ctx, parentVSize, anchorOutPoint, anchorAmountSats, row, pkScript)
	require.NoError(t, err)

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))

	childFee := int64(anchorAmountSats) + row.AmountSats - tx.TxOut[0].Value
	wantFee := int64(float64(parentVSize+ChildVSizeEstimate()) * rate)
	require.Equal(t, wantFee, childFee)

	rawLarger, err := sender.BuildChildPackage(ctx, parentVSize+1000, anchorOutPoint, anchorAmountSats, row, pkScript)
	require.NoError(t, err)

	var txLarger wire.MsgTx
	require.NoError(t, txLarger.Deserialize(bytes.NewReader(rawLarger)))
	require.Less(t, txLarger.TxOut[0].Value, tx.TxOut[0].Value)
}

func TestSubmitWithRetryRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	actor, pkScript := newTestSigner(t)
	broadcaster := &recordingBroadcaster{failuresBeforeSuccess: 2}
	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: 1}, newMemFeePayerStore(), fixedUTXOProvider{}, broadcaster, actor, WithRetryAttempts(3))

	raw := [][]byte{[]byte("parent"), []byte("child")}
	err := sender.SubmitWithRetry(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, 3, broadcaster.calls)
	require.Equal(t, raw, broadcaster.lastPackage)

	_ = pkScript
}

func TestSubmitWithRetryGivesUpAfterExhaustingAttempts(t *testing.T) {
	ctx := context.Background()
	actor, _ := newTestSigner(t)
	broadcaster := &recordingBroadcaster{failuresBeforeSuccess: 10}
	sender := New(ulogger.Nop(), StaticFeeEstimator{SatPerVByte: 1}, newMemFeePayerStore(), fixedUTXOProvider{}, broadcaster, actor, WithRetryAttempts(2))

	err := sender.SubmitWithRetry(ctx, [][]byte{[]byte("x")})
	require.Error(t, err)
	require.Equal(t, 2, broadcaster.calls)
}
