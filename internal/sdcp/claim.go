package sdcp

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Claim is the device's proof of identity (spec §4.4 "Connect"): an X.509
// certificate chaining to a trusted manufacturer root, the device's and
// firmware's ephemeral ECDH public points, a hash of the running firmware,
// and the two signatures binding them together.
//
//	H(c) = SHA256(cert_m || pk_d || pk_f || h_f || s_m || s_d)
type Claim struct {
	CertM []byte // DER-encoded X.509 certificate
	PkD   []byte // device ECDH public point, uncompressed SEC1 (65 bytes for P-256)
	PkF   []byte // firmware ECDH public point, same encoding
	HF    []byte // SHA-256 of the running firmware image
	Sm    []byte // 64-byte raw (r||s) ECDSA-P256 signature, manufacturer over pk_d
	Sd    []byte // 64-byte raw (r||s) ECDSA-P256 signature, device over pk_f/h_f
}

// Marshal packs a Claim into the wire format exchanged over the transport
// (USB interrupt/bulk transfers or the virtual gRPC bridge): every field
// is length-prefixed, the certificate with a 2-byte length and the other
// five fields (including the fixed-size hash and signatures) with a 1-byte
// length.
func (c Claim) Marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.CertM) })
	b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.PkD) })
	b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.PkF) })
	b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.HF) })
	b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.Sm) })
	b.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) { child.AddBytes(c.Sd) })
	return b.BytesOrPanic()
}

// UnmarshalClaim reverses Marshal.
func UnmarshalClaim(wire []byte) (Claim, error) {
	s := cryptobyte.String(wire)
	var certM, pkD, pkF, hf, sm, sd cryptobyte.String
	ok := s.ReadUint16LengthPrefixed(&certM) &&
		s.ReadUint8LengthPrefixed(&pkD) &&
		s.ReadUint8LengthPrefixed(&pkF) &&
		s.ReadUint8LengthPrefixed(&hf) &&
		s.ReadUint8LengthPrefixed(&sm) &&
		s.ReadUint8LengthPrefixed(&sd) &&
		s.Empty()
	if !ok {
		return Claim{}, fmt.Errorf("sdcp: claim: malformed wire encoding")
	}
	return Claim{
		CertM: []byte(certM),
		PkD:   []byte(pkD),
		PkF:   []byte(pkF),
		HF:    []byte(hf),
		Sm:    []byte(sm),
		Sd:    []byte(sd),
	}, nil
}
