package winternitz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	params := Params{MessageLenBytes: 32}
	master := [32]byte{1, 2, 3}
	sk := DeriveSecretKey(master, []byte("kickoff/0/3"), params)
	pk := sk.PublicKey()

	msg := make([]byte, 32)
	for i := range msg {
		msg[i] = byte(i * 7)
	}

	sig, err := sk.Sign(msg, params)
	require.NoError(t, err)
	require.True(t, Verify(pk, msg, sig, params))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	params := Params{MessageLenBytes: 8}
	sk := DeriveSecretKey([32]byte{9}, []byte("path"), params)
	pk := sk.PublicKey()

	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	sig, err := sk.Sign(msg, params)
	require.NoError(t, err)

	tampered := append([]byte{}, msg...)
	tampered[0] = 0xff
	require.False(t, Verify(pk, tampered, sig, params))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	params := Params{MessageLenBytes: 8}
	sk1 := DeriveSecretKey([32]byte{1}, []byte("a"), params)
	sk2 := DeriveSecretKey([32]byte{2}, []byte("b"), params)

	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	sig, err := sk1.Sign(msg, params)
	require.NoError(t, err)

	require.False(t, Verify(sk2.PublicKey(), msg, sig, params))
}

func TestSignRejectsWrongLength(t *testing.T) {
	params := Params{MessageLenBytes: 8}
	sk := DeriveSecretKey([32]byte{1}, []byte("a"), params)

	_, err := sk.Sign([]byte{1, 2, 3}, params)
	require.Error(t, err)
}

// TestForgedDigitIncreaseFailsChecksum exercises the reason a checksum
// digit exists: raising a message digit needs no secret, since hashing
// that digit's reveal forward once yields a valid reveal for the next
// value up. The checksum stops the forgery: a higher message digit
// lowers the checksum, and lowering a checksum digit would need a
// hash-chain preimage.
func TestForgedDigitIncreaseFailsChecksum(t *testing.T) {
	params := Params{MessageLenBytes: 4}
	sk := DeriveSecretKey([32]byte{7}, []byte("p"), params)
	pk := sk.PublicKey()

	msg := []byte{0x10, 0x20, 0x30, 0x40}
	sig, err := sk.Sign(msg, params)
	require.NoError(t, err)

	forged := []byte{0x11, 0x20, 0x30, 0x40}
	require.False(t, Verify(pk, forged, sig, params))

	// 0x10 -> 0x11 raises digit 1 from 0 to 1: hash its reveal forward once.
	forgedSig := &Signature{Reveals: append([][32]byte{}, sig.Reveals...), Digits: sig.Digits}
	forgedSig.Reveals[1] = chainHash(sig.Reveals[1], 1)
	require.Equal(t, pk.Tips[1], chainHash(forgedSig.Reveals[1], MaxDigit-1), "the raised message digit itself verifies")
	require.False(t, Verify(pk, forged, forgedSig, params))
}
