package sdcp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainLink mints a CA (optionally signed by a parent) for building
// multi-level test chains.
func chainLink(t *testing.T, cn string, parent *x509.Certificate, parentPriv *ecdsa.PrivateKey) ([]byte, *x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	signer := template
	signerPriv := priv
	if parent != nil {
		signer = parent
		signerPriv = parentPriv
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signer, &priv.PublicKey, signerPriv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return der, cert, priv
}

func pemOf(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestVerifyCertChainAcceptsLeafSignedDirectlyByRoot(t *testing.T) {
	rootDER, rootCert, rootPriv := chainLink(t, "root", nil, nil)
	leafDER, _, _ := chainLink(t, "leaf", rootCert, rootPriv)

	trust, err := NewTrustStore(pemOf(rootDER))
	require.NoError(t, err)

	_, err = trust.verifyCertChain(leafDER)
	assert.NoError(t, err)
}

func TestVerifyCertChainAcceptsLeafThroughConfiguredIntermediate(t *testing.T) {
	rootDER, rootCert, rootPriv := chainLink(t, "root", nil, nil)
	intDER, intCert, intPriv := chainLink(t, "intermediate", rootCert, rootPriv)
	leafDER, _, _ := chainLink(t, "leaf", intCert, intPriv)

	trust, err := NewTrustStore(pemOf(rootDER))
	require.NoError(t, err)

	// Without the intermediate configured, a leaf signed by it doesn't
	// chain: cert.Verify has nowhere to find the missing link.
	_, err = trust.verifyCertChain(leafDER)
	assert.Error(t, err)

	require.NoError(t, trust.SetIntermediates(pemOf(intDER)))
	_, err = trust.verifyCertChain(leafDER)
	assert.NoError(t, err)
}

func TestVerifyCertChainRejectsIntermediateNotChainingToAnyRoot(t *testing.T) {
	rootDER, _, _ := chainLink(t, "root", nil, nil)
	unrelatedIntDER, unrelatedIntCert, unrelatedIntPriv := chainLink(t, "unrelated-intermediate", nil, nil)
	leafDER, _, _ := chainLink(t, "leaf", unrelatedIntCert, unrelatedIntPriv)

	trust, err := NewTrustStore(pemOf(rootDER))
	require.NoError(t, err)
	require.NoError(t, trust.SetIntermediates(pemOf(unrelatedIntDER)))

	_, err = trust.verifyCertChain(leafDER)
	assert.Error(t, err)
}
