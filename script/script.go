// Package script implements the fixed leaf-script library the
// transaction graph builds taproot trees from (spec.md §4.4, component
// C4). Per spec.md §9's Design Note ("a language-neutral rewrite should
// use a tagged enum... no runtime reflection is needed beyond that
// enum"), every leaf is one Leaf value carrying a Kind discriminant
// instead of a boxed interface hierarchy; ScriptBytes and
// GenerateWitness both switch exhaustively on Kind.
package script

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/winternitz"
)

// Kind discriminates the leaf types: the five spec.md §4.4 names plus
// KindRaw for an externally supplied script.
type Kind int

const (
	KindCheckSig Kind = iota
	KindTimelock
	KindPreimageReveal
	KindWinternitzCommit
	KindDeposit
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindCheckSig:
		return "check_sig"
	case KindTimelock:
		return "timelock"
	case KindPreimageReveal:
		return "preimage_reveal"
	case KindWinternitzCommit:
		return "winternitz_commit"
	case KindDeposit:
		return "deposit"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Leaf is one taproot script-tree leaf. Only the fields relevant to
// Kind are populated; constructors below enforce that.
type Leaf struct {
	Kind Kind

	// CheckSig / Timelock / PreimageReveal / WinternitzCommit's trailing
	// signature check / Deposit's spend key.
	XOnlyPK *btcec.PublicKey

	// Timelock.
	TimelockBlocks uint32 // BIP68 relative-block timelock, nil pk permitted (OP_TRUE tail)

	// PreimageReveal.
	Hash160 [20]byte

	// WinternitzCommit.
	WinternitzPK     winternitz.PublicKey
	WinternitzParams winternitz.Params

	// Deposit.
	EvmRecipient [20]byte
	AmountSats   uint64

	// Raw carries an externally-supplied script verbatim (the BitVM
	// disprove game's per-instruction scripts, whose content this
	// package has no business generating).
	RawScript []byte
}

// NewCheckSig builds a `<pk> OP_CHECKSIG` leaf.
func NewCheckSig(pk *btcec.PublicKey) Leaf {
	return Leaf{Kind: KindCheckSig, XOnlyPK: pk}
}

// NewTimelock builds a relative-timelock leaf. pk may be nil, in which
// case the leaf is OP_TRUE-spendable by anyone once the timelock
// matures (used for the Round-to-kickoff-connector's housekeeping
// path).
func NewTimelock(pk *btcec.PublicKey, blocks uint32) Leaf {
	return Leaf{Kind: KindTimelock, XOnlyPK: pk, TimelockBlocks: blocks}
}

// NewPreimageReveal builds a hash-preimage-gated checksig leaf.
func NewPreimageReveal(pk *btcec.PublicKey, hash160 [20]byte) Leaf {
	return Leaf{Kind: KindPreimageReveal, XOnlyPK: pk, Hash160: hash160}
}

// NewWinternitzCommit builds a Winternitz-verifier-then-checksig leaf.
func NewWinternitzCommit(pk *btcec.PublicKey, wpk winternitz.PublicKey, params winternitz.Params) Leaf {
	return Leaf{Kind: KindWinternitzCommit, XOnlyPK: pk, WinternitzPK: wpk, WinternitzParams: params}
}

// NewDeposit builds the inscription-tagged deposit leaf that commits
// the EVM recipient and amount alongside an N-of-N checksig.
func NewDeposit(pk *btcec.PublicKey, evmRecipient [20]byte, amountSats uint64) Leaf {
	return Leaf{Kind: KindDeposit, XOnlyPK: pk, EvmRecipient: evmRecipient, AmountSats: amountSats}
}

// NewRaw wraps an externally-supplied script verbatim, used for the
// BitVM disprove leaves a ReimburseCache supplies (spec.md §4.5: "the
// BitVM disprove-script generator's internals are a Non-goal here").
func NewRaw(rawScript []byte) Leaf {
	return Leaf{Kind: KindRaw, RawScript: rawScript}
}

func xonly(pk *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pk)
}

// ScriptBytes renders the leaf's script, exhaustively over Kind.
func (l Leaf) ScriptBytes() ([]byte, error) {
	sb := txscript.NewScriptBuilder()

	switch l.Kind {
	case KindCheckSig:
		sb.AddData(xonly(l.XOnlyPK)).AddOp(txscript.OP_CHECKSIG)

	case KindTimelock:
		sb.AddInt64(int64(l.TimelockBlocks))
		sb.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		sb.AddOp(txscript.OP_DROP)
		if l.XOnlyPK != nil {
			sb.AddData(xonly(l.XOnlyPK)).AddOp(txscript.OP_CHECKSIG)
		} else {
			sb.AddOp(txscript.OP_TRUE)
		}

	case KindPreimageReveal:
		sb.AddOp(txscript.OP_HASH160)
		sb.AddData(l.Hash160[:])
		sb.AddOp(txscript.OP_EQUALVERIFY)
		sb.AddData(xonly(l.XOnlyPK)).AddOp(txscript.OP_CHECKSIG)

	case KindWinternitzCommit:
		appendWinternitzVerify(sb, l.WinternitzPK, l.WinternitzParams)
		sb.AddData(xonly(l.XOnlyPK)).AddOp(txscript.OP_CHECKSIG)

	case KindDeposit:
		sb.AddData(xonly(l.XOnlyPK)).AddOp(txscript.OP_CHECKSIG)
		sb.AddOp(txscript.OP_FALSE)
		sb.AddOp(txscript.OP_IF)
		sb.AddData([]byte("citrea"))
		sb.AddData(l.EvmRecipient[:])
		sb.AddData(beUint64(l.AmountSats))
		sb.AddOp(txscript.OP_ENDIF)

	case KindRaw:
		return l.RawScript, nil

	default:
		return nil, bridgeerrors.NewGraphBuildError("script: unknown leaf kind %v", l.Kind)
	}

	return sb.Script()
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// appendWinternitzVerify emits, for each digit position, a nested
// branch that recovers the digit by repeated OP_SHA256 application
// against the committed chain tip, then recombines the recovered
// message and checksum digits (base-16 place value, built from
// doublings since Script has no multiply opcode) and asserts they
// match — the on-chain half of winternitz.Verify.
func appendWinternitzVerify(sb *txscript.ScriptBuilder, pk winternitz.PublicKey, params winternitz.Params) {
	n := len(pk.Tips)

	for i := 0; i < n; i++ {
		appendDigitBranch(sb, pk.Tips[i], 0)
		sb.AddOp(txscript.OP_TOALTSTACK)
	}

	messageDigits := n - checksumDigitCount(params)
	checksumDigits := checksumDigitCount(params)

	// Pull message digits back in commitment order and accumulate a
	// running checksum contribution (MaxDigit - digit) per position.
	for i := 0; i < messageDigits; i++ {
		sb.AddOp(txscript.OP_FROMALTSTACK)
	}
	// Running checksum total starts at 0 on the main stack, folded in
	// beneath the recovered digits we just restored.
	sb.AddOp(txscript.OP_0)
	for i := 0; i < messageDigits; i++ {
		sb.AddOp(txscript.OP_SWAP)
		sb.AddInt64(int64(winternitz.MaxDigit))
		sb.AddOp(txscript.OP_SWAP)
		sb.AddOp(txscript.OP_SUB)
		sb.AddOp(txscript.OP_ADD)
	}

	// Recombine the committed checksum digits via doubling (x*16 is
	// four doublings) and compare against the accumulated total.
	for i := 0; i < checksumDigits; i++ {
		sb.AddOp(txscript.OP_FROMALTSTACK)
	}
	for i := 1; i < checksumDigits; i++ {
		for d := 0; d < 4; d++ {
			sb.AddOp(txscript.OP_DUP)
			sb.AddOp(txscript.OP_ADD)
		}
		sb.AddOp(txscript.OP_ADD)
	}

	sb.AddOp(txscript.OP_EQUALVERIFY)
}

func checksumDigitCount(params winternitz.Params) int {
	maxChecksum := params.MessageLenBytes * 2 * winternitz.MaxDigit
	d := 1
	for v := maxChecksum; v >= winternitz.DigitBase; v /= winternitz.DigitBase {
		d++
	}
	return d
}

// appendDigitBranch recovers one digit: at depth d, the top of stack
// has already had d OP_SHA256 applications; if it equals tip, the
// committed digit is (MaxDigit - d), otherwise hash once more and
// recurse. Depth MaxDigit with no match is unreachable for a
// well-formed signature and is scripted as an unconditional failure.
func appendDigitBranch(sb *txscript.ScriptBuilder, tip [32]byte, depth int) {
	sb.AddOp(txscript.OP_DUP)
	sb.AddData(tip[:])
	sb.AddOp(txscript.OP_EQUAL)
	sb.AddOp(txscript.OP_IF)
	sb.AddOp(txscript.OP_DROP)
	sb.AddInt64(int64(winternitz.MaxDigit - depth))
	sb.AddOp(txscript.OP_ELSE)
	if depth < winternitz.MaxDigit {
		sb.AddOp(txscript.OP_SHA256)
		appendDigitBranch(sb, tip, depth+1)
	} else {
		sb.AddOp(txscript.OP_0)
		sb.AddOp(txscript.OP_VERIFY)
	}
	sb.AddOp(txscript.OP_ENDIF)
}

// GenerateWitness returns this leaf's witness stack given the caller's
// supplied signature material, exhaustively over Kind.
func (l Leaf) GenerateWitness(w WitnessInput) (wire.TxWitness, error) {
	switch l.Kind {
	case KindCheckSig:
		if w.Signature == nil {
			return nil, bridgeerrors.NewSigningError("script: check_sig leaf missing signature")
		}
		return wire.TxWitness{w.Signature}, nil

	case KindTimelock:
		if l.XOnlyPK == nil {
			return wire.TxWitness{}, nil
		}
		if w.Signature == nil {
			return nil, bridgeerrors.NewSigningError("script: timelock leaf missing signature")
		}
		return wire.TxWitness{w.Signature}, nil

	case KindPreimageReveal:
		if w.Signature == nil || w.Preimage == nil {
			return nil, bridgeerrors.NewSigningError("script: preimage_reveal leaf missing preimage or signature")
		}
		return wire.TxWitness{w.Preimage, w.Signature}, nil

	case KindWinternitzCommit:
		if w.Signature == nil || w.WinternitzSig == nil {
			return nil, bridgeerrors.NewSigningError("script: winternitz_commit leaf missing signature")
		}
		witness := make(wire.TxWitness, 0, len(w.WinternitzSig.Reveals)+1)
		for i := len(w.WinternitzSig.Reveals) - 1; i >= 0; i-- {
			r := w.WinternitzSig.Reveals[i]
			witness = append(witness, r[:])
		}
		witness = append(witness, w.Signature)
		return witness, nil

	case KindDeposit:
		if w.Signature == nil {
			return nil, bridgeerrors.NewSigningError("script: deposit leaf missing signature")
		}
		return wire.TxWitness{w.Signature}, nil

	case KindRaw:
		if w.RawWitness == nil {
			return nil, bridgeerrors.NewSigningError("script: raw leaf missing witness stack")
		}
		return wire.TxWitness(w.RawWitness), nil

	default:
		return nil, bridgeerrors.NewGraphBuildError("script: unknown leaf kind %v", l.Kind)
	}
}

// WitnessInput carries whatever signature material a leaf's witness
// needs; callers only fill the fields their leaf kind requires.
type WitnessInput struct {
	Signature     []byte
	Preimage      []byte
	WinternitzSig *winternitz.Signature
	RawWitness    [][]byte
}

// Anchor is the literal ephemeral P2A output script (spec.md §6).
var Anchor = []byte{0x51, 0x02, 0x4e, 0x73}

// OpReturn builds a standard null-data output script carrying data.
func OpReturn(data []byte) ([]byte, error) {
	sb := txscript.NewScriptBuilder()
	sb.AddOp(txscript.OP_RETURN)
	if len(data) > 0 {
		sb.AddData(data)
	}
	return sb.Script()
}
