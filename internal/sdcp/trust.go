package sdcp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"math/big"
)

// TrustStore holds the manufacturer root(s) a Claim's cert_m must
// ultimately chain to, plus the configured intermediate-CA list a
// deployment trusts to sit between cert_m and a root (spec §3 "SDCP
// session", §4.4 step "validate the certificate chain through the
// configured intermediate-CA list chaining to a system trust root").
// SPEC_FULL §15 decided the simplest reading: an intermediate must chain
// to some root in the pool, with no extra name constraints.
type TrustStore struct {
	Roots         *x509.CertPool
	Intermediates *x509.CertPool
}

// NewTrustStore builds a TrustStore from PEM-encoded root certificates,
// with no configured intermediates. Call SetIntermediates to add the
// intermediate-CA list a deployment was configured with.
func NewTrustStore(rootPEMs ...[]byte) (*TrustStore, error) {
	roots, err := certPoolFromPEMs("root", rootPEMs)
	if err != nil {
		return nil, err
	}
	return &TrustStore{Roots: roots, Intermediates: x509.NewCertPool()}, nil
}

// SetIntermediates replaces the store's configured intermediate-CA list.
func (ts *TrustStore) SetIntermediates(intermediatePEMs ...[]byte) error {
	pool, err := certPoolFromPEMs("intermediate", intermediatePEMs)
	if err != nil {
		return err
	}
	ts.Intermediates = pool
	return nil
}

func certPoolFromPEMs(kind string, pemBlocks [][]byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for i, pemBytes := range pemBlocks {
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("sdcp: trust store: %s %d did not parse as PEM", kind, i)
		}
	}
	return pool, nil
}

// verifyCertChain parses cert_m and checks it chains, through the
// configured intermediate-CA list if needed, to a trusted root,
// returning the manufacturer's ECDSA public key (pk_m) embedded in it.
func (ts *TrustStore) verifyCertChain(certDER []byte) (*ecdsa.PublicKey, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("sdcp: cert_m did not parse: %w", err)
	}
	if _, err := cert.Verify(x509.VerifyOptions{
		Roots:         ts.Roots,
		Intermediates: ts.Intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("sdcp: cert_m does not chain to a trusted root: %w", err)
	}
	pkM, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("sdcp: cert_m public key is not ECDSA")
	}
	return pkM, nil
}

// parseECPoint decodes an uncompressed SEC1 point (0x04 || X || Y) on
// P-256, as used for pk_d/pk_f throughout the handshake.
func parseECPoint(raw []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, raw)
	if x == nil {
		return nil, fmt.Errorf("sdcp: invalid P-256 point encoding")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// verifyRawECDSA verifies a 64-byte raw (r||s) P-256 signature, the
// encoding the claim's s_m/s_d fields use (as opposed to ASN.1 DER).
func verifyRawECDSA(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, digest, r, s)
}

// sha256Sum is a small convenience wrapper used throughout claim
// verification.
func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
