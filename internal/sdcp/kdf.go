// Package sdcp implements the SDCP (Secure Device Connection Protocol)
// session layer (spec §4.4): the ECDH/KDF/MAC handshake a match-on-chip
// sensor uses to prove its identity before any enroll/identify/verify is
// trusted, and the per-action MAC checks layered on top. Grounded
// line-for-line on original_source/libfprint/fpi-sdcp-device.c.
package sdcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// KDF implements NIST SP 800-108 counter-mode key derivation with
// HMAC-SHA-256 as the PRF (spec §4.4 "KDF / MAC primitives"):
// K(i) = HMAC(key, [i]_32 || label || 0x00 || context), labels are
// zero-terminated, context is the concatenation of the caller's byte
// strings. outputs controls how many 32-byte blocks are produced (2 when
// deriving the enc/mac_secret application-key pair).
func KDF(key []byte, label string, context []byte, outputs int) [][]byte {
	fixed := append([]byte(label), 0)
	fixed = append(fixed, context...)

	out := make([][]byte, outputs)
	for i := 0; i < outputs; i++ {
		var counter [4]byte
		binary.BigEndian.PutUint32(counter[:], uint32(i+1))
		mac := hmac.New(sha256.New, key)
		mac.Write(counter[:])
		mac.Write(fixed)
		out[i] = mac.Sum(nil)
	}
	return out
}

// MAC computes HMAC-SHA-256(key, label || 0x00 || context), the tag
// primitive spec §4.4 uses for "connect"/"reconnect"/"enroll"/"identify".
func MAC(key []byte, label string, context ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(label))
	mac.Write([]byte{0})
	for _, c := range context {
		mac.Write(c)
	}
	return mac.Sum(nil)
}
