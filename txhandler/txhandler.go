// Package txhandler implements the declarative transaction builder
// component C3 describes: a TxHandler carrying an in-flight
// transaction, its spend metadata per input, and a signature-slot
// table, with a two-phase unsigned/Checked typing so encode_tx is only
// reachable once every required slot is filled.
package txhandler

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/script"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// TransactionType enumerates the fixed graph (spec.md §3). Watchtower-
// and assert-indexed variants carry their index inline rather than as
// a type parameter, matching Go's lack of algebraic data types.
type TransactionType struct {
	Name string
	Idx  int // -1 when the variant is not indexed
}

func Type(name string) TransactionType           { return TransactionType{Name: name, Idx: -1} }
func IndexedType(name string, idx int) TransactionType { return TransactionType{Name: name, Idx: idx} }

var (
	TypeMoveToVault                = Type("MoveToVault")
	TypeRound                      = Type("Round")
	TypeReadyToReimburse           = Type("ReadyToReimburse")
	TypeKickoff                    = Type("Kickoff")
	TypeWatchtowerChallengeKickoff = Type("WatchtowerChallengeKickoff")
	TypeChallenge                  = Type("Challenge")
	TypeChallengeTimeout           = Type("ChallengeTimeout")
	TypeKickoffNotFinalized        = Type("KickoffNotFinalized")
	TypeDisprove                   = Type("Disprove")
	TypeDisproveTimeout            = Type("DisproveTimeout")
	TypeReimburse                  = Type("Reimburse")
	TypeAllNeededForDeposit        = Type("AllNeededForDeposit")
)

func WatchtowerChallenge(i int) TransactionType { return IndexedType("WatchtowerChallenge", i) }
func OperatorChallengeAck(i int) TransactionType  { return IndexedType("OperatorChallengeAck", i) }
func OperatorChallengeNack(i int) TransactionType { return IndexedType("OperatorChallengeNack", i) }
func MiniAssert(i int) TransactionType            { return IndexedType("MiniAssert", i) }
func AssertTimeout(i int) TransactionType         { return IndexedType("AssertTimeout", i) }
func UnspentKickoff(i int) TransactionType        { return IndexedType("UnspentKickoff", i) }

// SigKindTag discriminates the two shapes a SignatureKind can take
// (spec.md §4.3: "NormalSignatureKind::X or (NumberedSignatureKind::Y, idx)").
type SigKindTag int

const (
	SigNormal SigKindTag = iota
	SigNumbered
)

// SignatureKind is the key into a TxHandler's signature-slot table.
type SignatureKind struct {
	Tag  SigKindTag
	Name string
	Idx  int // only meaningful when Tag == SigNumbered
}

func NormalSig(name string) SignatureKind { return SignatureKind{Tag: SigNormal, Name: name, Idx: -1} }
func NumberedSig(name string, idx int) SignatureKind {
	return SignatureKind{Tag: SigNumbered, Name: name, Idx: idx}
}

// SpendPathKind discriminates a key-path spend from a specific leaf of
// a taproot script tree.
type SpendPathKind int

const (
	SpendKeyPath SpendPathKind = iota
	SpendScriptPath
)

// SpendPath names how one input is spent.
type SpendPath struct {
	Kind      SpendPathKind
	LeafIndex int // index into SpendableTxIn.Leaves, valid only for SpendScriptPath
}

func KeyPath() SpendPath                 { return SpendPath{Kind: SpendKeyPath} }
func ScriptPath(leafIndex int) SpendPath { return SpendPath{Kind: SpendScriptPath, LeafIndex: leafIndex} }

// SpendableTxIn bundles the previous output and every piece of spend
// metadata the builder or signer needs: the leaves present at that
// output (empty for a pure key-path output), their assembled taproot
// spend info, and which path this particular input takes.
type SpendableTxIn struct {
	Prevout    *wire.TxOut
	InternalKey *btcec.PublicKey
	Leaves     []script.Leaf
	SpendInfo  *TapscriptSpendInfo // nil for key-path-only outputs
	SigKind    SignatureKind
	Path       SpendPath
	Sequence   uint32
}

// NewKeyPathSpendable describes an input whose output is pure
// key-path (no alternate script leaves), such as a CheckSig(nofn_pk)
// MoveToVault output.
func NewKeyPathSpendable(prevout *wire.TxOut, internalKey *btcec.PublicKey, sigKind SignatureKind, sequence uint32) *SpendableTxIn {
	return &SpendableTxIn{
		Prevout:     prevout,
		InternalKey: internalKey,
		SigKind:     sigKind,
		Path:        KeyPath(),
		Sequence:    sequence,
	}
}

// NewScriptPathSpendable describes an input spent through one leaf of
// a taproot tree assembled from leaves.
func NewScriptPathSpendable(prevout *wire.TxOut, internalKey *btcec.PublicKey, leaves []script.Leaf, leafIndex int, sigKind SignatureKind, sequence uint32) (*SpendableTxIn, error) {
	info, err := BuildSpendInfo(internalKey, leaves)
	if err != nil {
		return nil, err
	}

	return &SpendableTxIn{
		Prevout:     prevout,
		InternalKey: internalKey,
		Leaves:      leaves,
		SpendInfo:   info,
		SigKind:     sigKind,
		Path:        ScriptPath(leafIndex),
		Sequence:    sequence,
	}, nil
}

// SigSlot holds whatever signature material one slot needs, since
// leaves differ in what their witness requires (a schnorr signature
// alone, or a preimage plus signature, or a Winternitz signature plus
// signature).
type SigSlot struct {
	Signature     []byte
	Preimage      []byte
	WinternitzSig *winternitz.Signature
	RawWitness    [][]byte
}

// TxHandler is the unsigned/partially-signed transaction under
// construction (spec.md §4.3).
type TxHandler struct {
	TxType       TransactionType
	Tx           *wire.MsgTx
	Inputs       []*SpendableTxIn
	Sigs         map[SignatureKind]SigSlot
	requiredSigs []SignatureKind
}

// FillSignature, FillPreimage and FillWinternitz populate one slot.
func (h *TxHandler) FillSignature(kind SignatureKind, sig []byte) {
	slot := h.Sigs[kind]
	slot.Signature = sig
	h.Sigs[kind] = slot
}

func (h *TxHandler) FillPreimage(kind SignatureKind, preimage []byte) {
	slot := h.Sigs[kind]
	slot.Preimage = preimage
	h.Sigs[kind] = slot
}

func (h *TxHandler) FillWinternitz(kind SignatureKind, sig *winternitz.Signature) {
	slot := h.Sigs[kind]
	slot.WinternitzSig = sig
	h.Sigs[kind] = slot
}

// FillRawWitness populates the raw witness stack a KindRaw leaf's
// GenerateWitness returns verbatim (the BitVM disprove game's leaves,
// whose witness shape this package cannot otherwise know).
func (h *TxHandler) FillRawWitness(kind SignatureKind, witness [][]byte) {
	slot := h.Sigs[kind]
	slot.RawWitness = witness
	h.Sigs[kind] = slot
}

// CheckedTxHandler is a TxHandler every required slot has been filled
// for; only it exposes EncodeTx. This models spec.md §4.3's two-phase
// typing ("an unsigned TxHandler becomes a Checked handler only after
// all required slots are filled; encode_tx() is available only on
// Checked") without a language-level phantom-type mechanism.
type CheckedTxHandler struct {
	*TxHandler
}

// Checked promotes h once every slot named in its builder's required
// list is present.
func (h *TxHandler) Checked() (*CheckedTxHandler, error) {
	for _, k := range h.requiredSigs {
		slot, ok := h.Sigs[k]
		if !ok || slot.Signature == nil {
			return nil, bridgeerrors.NewSigningError("txhandler: %s missing required signature slot %+v", h.TxType.Name, k)
		}
	}
	return &CheckedTxHandler{h}, nil
}

// EncodeTx fills every input's witness from its signature slot and
// returns the fully signed wire encoding.
func (c *CheckedTxHandler) EncodeTx() ([]byte, error) {
	tx := c.Tx.Copy()

	for i, in := range c.Inputs {
		slot := c.Sigs[in.SigKind]

		var witness [][]byte
		var err error

		switch in.Path.Kind {
		case SpendKeyPath:
			if slot.Signature == nil {
				return nil, bridgeerrors.NewSigningError("txhandler: input %d missing key-path signature", i)
			}
			witness = [][]byte{slot.Signature}

		case SpendScriptPath:
			leaf := in.Leaves[in.Path.LeafIndex]
			w, werr := leaf.GenerateWitness(script.WitnessInput{
				Signature:     slot.Signature,
				Preimage:      slot.Preimage,
				WinternitzSig: slot.WinternitzSig,
				RawWitness:    slot.RawWitness,
			})
			if werr != nil {
				return nil, werr
			}

			scriptBytes, serr := leaf.ScriptBytes()
			if serr != nil {
				return nil, serr
			}
			controlBlock, cerr := in.SpendInfo.ControlBlock(in.Path.LeafIndex)
			if cerr != nil {
				return nil, cerr
			}

			witness = append([][]byte{}, w...)
			witness = append(witness, scriptBytes, controlBlock)

		default:
			err = bridgeerrors.NewGraphBuildError("txhandler: unknown spend path kind %d", in.Path.Kind)
		}
		if err != nil {
			return nil, err
		}

		tx.TxIn[i].Witness = witness
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, bridgeerrors.NewSigningError("txhandler: serialize failed: %v", err)
	}
	return buf.Bytes(), nil
}

// VSizeFromRawTx parses a fully-signed raw transaction and returns its
// virtual size in vbytes: weight = stripped_size*3 + total_size,
// vsize = ceil(weight/4) — the standard segwit weight-to-vbyte
// conversion, the unit CPFP fee calculations rate against (spec.md
// §4.8/§8 property 10: "feerate × (weight(T) + weight(child))").
func VSizeFromRawTx(raw []byte) (int64, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return 0, bridgeerrors.NewBroadcastError("txhandler: parse raw tx for vsize: %v", err)
	}
	weight := tx.SerializeSizeStripped()*3 + tx.SerializeSize()
	return int64((weight + 3) / 4), nil
}

// ComputeSighash returns the sighash for input idx, key-path or
// script-path depending on that input's SpendPath, over the full
// prevouts vector (spec.md §4.3: "computed with SighashCache over the
// full prevouts vector").
func (h *TxHandler) ComputeSighash(idx int, hashType txscript.SigHashType) ([]byte, error) {
	if idx < 0 || idx >= len(h.Inputs) {
		return nil, bridgeerrors.NewSigningError("txhandler: sighash index %d out of range", idx)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range h.Inputs {
		fetcher.AddPrevOut(h.Tx.TxIn[i].PreviousOutPoint, in.Prevout)
	}
	sigHashes := txscript.NewTxSigHashes(h.Tx, fetcher)

	in := h.Inputs[idx]
	switch in.Path.Kind {
	case SpendKeyPath:
		return txscript.CalcTaprootSignatureHash(sigHashes, hashType, h.Tx, idx, fetcher)

	case SpendScriptPath:
		leaf := in.Leaves[in.Path.LeafIndex]
		leafScript, err := leaf.ScriptBytes()
		if err != nil {
			return nil, err
		}
		tapLeaf := txscript.NewBaseTapLeaf(leafScript)
		return txscript.CalcTapscriptSignaturehash(sigHashes, hashType, h.Tx, idx, fetcher, tapLeaf)

	default:
		return nil, bridgeerrors.NewGraphBuildError("txhandler: unknown spend path kind %d", in.Path.Kind)
	}
}
