package sdcp

import (
	"crypto/subtle"
	"fmt"
)

// verifyClaim runs the claim-verification pipeline spec §4.4 lays out for
// Connect, steps (a)-(f):
//
//	a. shared secret  a  = ECDH(host_priv, pk_f)
//	b. master secret     = KDF(a, "master secret", r_h || r_d)
//	c. enc, mac_secret   = KDF(master, "application keys", nil, 2)
//	d. H(c) = SHA256(cert_m || pk_d || pk_f || h_f || s_m || s_d);
//	   require connect_mac == HMAC(mac_secret, "connect" || H(c))
//	e. cert_m must chain to a trusted manufacturer root; pk_m is its key
//	f. Verify(pk_m, SHA256(pk_d), s_m) and
//	   Verify(pk_d, SHA256(0xC001 || h_f || pk_f), s_d)
//
// Any failure returns ErrUntrusted to the caller (spec §4.1's device-level
// equivalent, deliberately never distinguished further: a broken claim is
// a broken claim, not a diagnosable protocol error).
func (s *Device) verifyClaim(claim Claim, connectMAC []byte, deviceRandom [32]byte) ([]byte, error) {
	pkF, err := parseECPoint(claim.PkF)
	if err != nil {
		return nil, fmt.Errorf("pk_f: %w", err)
	}
	pkFEcdh, err := pkF.ECDH()
	if err != nil {
		return nil, fmt.Errorf("pk_f: %w", err)
	}

	// a. shared secret over the ephemeral ECDH points.
	a, err := s.hostPriv.ECDH(pkFEcdh)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	// b. master secret, bound to both randoms so neither party can replay
	// a stale handshake.
	master := KDF(a, "master secret", concat(s.hostRandom[:], deviceRandom[:]), 1)[0]

	// c. derive the session's encryption and MAC keys from master.
	appKeys := KDF(master, "application keys", nil, 2)
	macSecret := appKeys[1]

	// d. connect MAC must cover every field of the claim.
	digest := claim.Digest()
	wantMAC := MAC(macSecret, "connect", digest)
	if subtle.ConstantTimeCompare(connectMAC, wantMAC) != 1 {
		return nil, fmt.Errorf("connect MAC mismatch")
	}

	// e. cert_m must chain to a trusted manufacturer root.
	pkM, err := s.trust.verifyCertChain(claim.CertM)
	if err != nil {
		return nil, err
	}

	// f. dual signature check: the manufacturer vouches for the device
	// key, the device key vouches for the firmware it's currently running.
	pkD, err := parseECPoint(claim.PkD)
	if err != nil {
		return nil, fmt.Errorf("pk_d: %w", err)
	}
	if !verifyRawECDSA(pkM, sha256Sum(claim.PkD), claim.Sm) {
		return nil, fmt.Errorf("manufacturer signature over pk_d did not verify")
	}
	if !verifyRawECDSA(pkD, sha256Sum([]byte{0xC0, 0x01}, claim.HF, claim.PkF), claim.Sd) {
		return nil, fmt.Errorf("device signature over firmware hash did not verify")
	}

	return macSecret, nil
}

// Digest computes H(c) = SHA256(cert_m || pk_d || pk_f || h_f || s_m || s_d).
func (c Claim) Digest() []byte {
	return sha256Sum(c.CertM, c.PkD, c.PkF, c.HF, c.Sm, c.Sd)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
