// Package signer implements the Signer/Actor component (spec.md §4.6,
// C6): a schnorr secret key plus a Winternitz master seed, able to
// derive one-time-signature keys per protocol path and fill a
// TxHandler's signature slots.
package signer

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/chaincfg"
	"github.com/bridge-node/vault-bridge/txhandler"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// PathKind discriminates the derivation-path variants spec.md §4.6
// names for derive_winternitz_pk.
type PathKind int

const (
	PathKickoff PathKind = iota
	PathWatchtowerChallenge
	PathChallengeAckHash
	PathAssertStep
)

// DerivationPath is the Kickoff(round_idx, kickoff_idx) |
// WatchtowerChallenge(operator_idx, deposit_txid) |
// ChallengeAckHash(watchtower_idx, deposit_txid) |
// AssertStep(round_idx, kickoff_idx, step_idx) union.
type DerivationPath struct {
	Kind          PathKind
	RoundIdx      uint32
	KickoffIdx    uint32
	OperatorIdx   uint32
	WatchtowerIdx uint32
	StepIdx       uint32
	DepositTxid   [32]byte
}

// Bytes is the stable domain-separated encoding this path contributes
// to winternitz.DeriveSecretKey's seed derivation; two distinct paths
// must never collide.
func (p DerivationPath) Bytes() []byte {
	buf := make([]byte, 0, 41)
	buf = append(buf, byte(p.Kind))

	switch p.Kind {
	case PathKickoff:
		buf = appendUint32(buf, p.RoundIdx)
		buf = appendUint32(buf, p.KickoffIdx)
	case PathWatchtowerChallenge:
		buf = appendUint32(buf, p.OperatorIdx)
		buf = append(buf, p.DepositTxid[:]...)
	case PathChallengeAckHash:
		buf = appendUint32(buf, p.WatchtowerIdx)
		buf = append(buf, p.DepositTxid[:]...)
	case PathAssertStep:
		buf = appendUint32(buf, p.RoundIdx)
		buf = appendUint32(buf, p.KickoffIdx)
		buf = appendUint32(buf, p.StepIdx)
	}

	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Actor holds the key material one operator/verifier/watchtower signs
// with.
type Actor struct {
	secretKey      *btcec.PrivateKey
	winternitzSeed [32]byte
	network        chaincfg.Network
}

// New constructs an Actor for the given network.
func New(secretKey *btcec.PrivateKey, winternitzSeed [32]byte, network chaincfg.Network) *Actor {
	return &Actor{secretKey: secretKey, winternitzSeed: winternitzSeed, network: network}
}

// XOnlyPublicKey is this actor's schnorr public key.
func (a *Actor) XOnlyPublicKey() *btcec.PublicKey { return a.secretKey.PubKey() }

// Network reports which network this actor is configured for.
func (a *Actor) Network() chaincfg.Network { return a.network }

// DeriveWinternitzPK deterministically derives the public half of a
// Winternitz key for path, without revealing the secret chains.
func (a *Actor) DeriveWinternitzPK(path DerivationPath, params winternitz.Params) winternitz.PublicKey {
	return a.deriveWinternitzSK(path, params).PublicKey()
}

func (a *Actor) deriveWinternitzSK(path DerivationPath, params winternitz.Params) winternitz.SecretKey {
	return winternitz.DeriveSecretKey(a.winternitzSeed, path.Bytes(), params)
}

// SignInput computes the sighash for input idx and fills kind's slot
// with this actor's schnorr signature over it — the per-actor half of
// an eventual N-of-N aggregate, or a standalone signature for
// operator-only spends.
func (a *Actor) SignInput(handler *txhandler.TxHandler, idx int, kind txhandler.SignatureKind, hashType txscript.SigHashType) error {
	sighash, err := handler.ComputeSighash(idx, hashType)
	if err != nil {
		return err
	}

	sig, err := a.signSchnorr(sighash)
	if err != nil {
		return err
	}

	handler.FillSignature(kind, sig)
	return nil
}

func (a *Actor) signSchnorr(hash []byte) ([]byte, error) {
	sig, err := schnorr.Sign(a.secretKey, hash)
	if err != nil {
		return nil, bridgeerrors.NewSigningError("signer: schnorr sign failed: %v", err)
	}
	return sig.Serialize(), nil
}

// TxSignAndFillSigs fills in aggregated N-of-N signatures computed
// elsewhere (MuSig2 aggregation is out of scope here — spec.md's
// Non-goals list it explicitly; this repo receives the aggregate
// signature as an opaque table, keyed by slot).
func (a *Actor) TxSignAndFillSigs(handler *txhandler.TxHandler, sigs map[txhandler.SignatureKind][]byte) {
	for kind, sig := range sigs {
		handler.FillSignature(kind, sig)
	}
}

// TxSignWinternitz derives each slot's one-time key from paths and
// signs the matching message, attaching the result to handler.
func (a *Actor) TxSignWinternitz(handler *txhandler.TxHandler, messages map[txhandler.SignatureKind][]byte, paths map[txhandler.SignatureKind]DerivationPath, params winternitz.Params) error {
	for kind, message := range messages {
		path, ok := paths[kind]
		if !ok {
			return bridgeerrors.NewSigningError("signer: no derivation path supplied for slot %+v", kind)
		}

		sk := a.deriveWinternitzSK(path, params)
		sig, err := sk.Sign(message, params)
		if err != nil {
			return err
		}

		handler.FillWinternitz(kind, sig)
	}

	return nil
}

// TxSignPreimage reveals preimage into kind's slot.
func (a *Actor) TxSignPreimage(handler *txhandler.TxHandler, kind txhandler.SignatureKind, preimage []byte) {
	handler.FillPreimage(kind, preimage)
}
