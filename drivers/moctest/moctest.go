// Package moctest implements a match-on-chip sdcp.Driver with no real
// hardware or network behind it: at construction it mints its own
// manufacturer-signed device identity, and from then on every Connect,
// Enroll, and Identify runs entirely in process, matching scans by exact
// byte comparison against whatever was previously enrolled. It exists to
// exercise internal/sdcp's full handshake/enroll/identify pipeline
// end-to-end without real silicon or a network peer.
//
// The retrieval pack has no concrete SDCP sensor driver to imitate (SDCP
// is libfprint's newest device class), so this is grounded on two
// adjacent sources instead: the vfunc contract
// original_source/libfprint/fpi-sdcp-device.h documents for
// connect/reconnect/enroll_begin/enroll_commit/identify, and the
// open-then-report-complete lifecycle shape of
// original_source/libfprint/drivers/cs9711/cs9711.c, the pack's one
// concrete USB image-sensor driver.
package moctest

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"fprintcore/internal/device"
	"fprintcore/internal/sdcp"
)

// Driver is the simulated chip. The zero value is not usable; build one
// with NewDriver.
type Driver struct {
	mu sync.Mutex

	rootPriv    *ecdsa.PrivateKey
	rootCertDER []byte

	devicePriv   *ecdsa.PrivateKey
	firmwareHash []byte

	enrolled map[string][]byte // hex(id) -> enrolled sample

	pendingEnrollSample   []byte
	pendingIdentifySample []byte
}

// NewDriver mints a fresh manufacturer root certificate and device
// identity key, returning both the driver and the root certificate DER a
// caller must feed into an sdcp.TrustStore for Connect to succeed.
func NewDriver() (*Driver, []byte, error) {
	rootPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("moctest: generate root key: %w", err)
	}
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "moctest manufacturer root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour * 365 * 10),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootPriv.PublicKey, rootPriv)
	if err != nil {
		return nil, nil, fmt.Errorf("moctest: self-sign root: %w", err)
	}

	devicePriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("moctest: generate device key: %w", err)
	}

	return &Driver{
		rootPriv:     rootPriv,
		rootCertDER:  rootDER,
		devicePriv:   devicePriv,
		firmwareHash: []byte("moctest firmware v1"),
		enrolled:     make(map[string][]byte),
	}, rootDER, nil
}

// QueueEnrollSample arranges for the next Enroll to capture sample; it is
// consumed (cleared) once EnrollCommit fires.
func (d *Driver) QueueEnrollSample(sample []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingEnrollSample = append([]byte(nil), sample...)
}

// QueueIdentifySample arranges for the next Identify to capture sample.
func (d *Driver) QueueIdentifySample(sample []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingIdentifySample = append([]byte(nil), sample...)
}

func pointBytes(pub *ecdsa.PublicKey) ([]byte, error) {
	p, err := pub.ECDH()
	if err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

func signRaw(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// Connect mints a fresh ephemeral ECDH keypair and claim, the way real
// firmware does on every full handshake.
func (d *Driver) Connect(s *sdcp.Device, hostRandom [32]byte, hostPubPoint []byte) {
	firmwarePriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		s.ConnectComplete([32]byte{}, sdcp.Claim{}, nil, err)
		return
	}
	var deviceRandom [32]byte
	if _, err := rand.Read(deviceRandom[:]); err != nil {
		s.ConnectComplete([32]byte{}, sdcp.Claim{}, nil, err)
		return
	}

	pkF := firmwarePriv.PublicKey().Bytes()
	pkD, err := pointBytes(&d.devicePriv.PublicKey)
	if err != nil {
		s.ConnectComplete([32]byte{}, sdcp.Claim{}, nil, err)
		return
	}

	smDigest := sha256.Sum256(pkD)
	sm, err := signRaw(d.rootPriv, smDigest[:])
	if err != nil {
		s.ConnectComplete([32]byte{}, sdcp.Claim{}, nil, err)
		return
	}
	sdDigest := sha256.Sum256(append(append([]byte{0xC0, 0x01}, d.firmwareHash...), pkF...))
	sd, err := signRaw(d.devicePriv, sdDigest[:])
	if err != nil {
		s.ConnectComplete([32]byte{}, sdcp.Claim{}, nil, err)
		return
	}

	claim := sdcp.Claim{CertM: d.rootCertDER, PkD: pkD, PkF: pkF, HF: d.firmwareHash, Sm: sm, Sd: sd}

	hostPub, err := ecdh.P256().NewPublicKey(hostPubPoint)
	if err != nil {
		s.ConnectComplete([32]byte{}, claim, nil, err)
		return
	}
	shared, err := firmwarePriv.ECDH(hostPub)
	if err != nil {
		s.ConnectComplete([32]byte{}, claim, nil, err)
		return
	}
	master := sdcp.KDF(shared, "master secret", append(append([]byte(nil), hostRandom[:]...), deviceRandom[:]...), 1)[0]
	appKeys := sdcp.KDF(master, "application keys", nil, 2)
	macSecret := appKeys[1]

	mac := sdcp.MAC(macSecret, "connect", claim.Digest())
	s.ConnectComplete(deviceRandom, claim, mac, nil)
}

// Reconnect proves liveness with the mac_secret the session already
// established, the same value this driver derived during Connect: real
// firmware keeps its own copy; this mock reads the host's back via
// s.MACSecret(), standing in for that independent derivation.
func (d *Driver) Reconnect(s *sdcp.Device, hostRandom [32]byte) {
	mac := sdcp.MAC(s.MACSecret(), "reconnect", hostRandom[:])
	s.ReconnectComplete(mac, nil)
}

// Enroll captures whatever sample was queued via QueueEnrollSample. A
// missing sample is reported as an error rather than silently enrolling
// nothing.
func (d *Driver) Enroll(s *sdcp.Device) {
	d.mu.Lock()
	sample := d.pendingEnrollSample
	d.mu.Unlock()
	if sample == nil {
		s.EnrollReady(device.NewRetryError(device.RetryGeneral, "moctest: no enroll sample queued"))
		return
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		s.EnrollReady(err)
		return
	}
	s.SetEnrollNonce(nonce)
	s.EnrollReady(nil)
}

// EnrollCommit stores the enroll id the session computed alongside the
// sample captured during Enroll.
func (d *Driver) EnrollCommit(s *sdcp.Device, id []byte) {
	d.mu.Lock()
	d.enrolled[hex.EncodeToString(id)] = d.pendingEnrollSample
	d.pendingEnrollSample = nil
	d.mu.Unlock()
	s.EnrollCommitComplete(nil)
}

// Identify compares the queued identify sample against every enrolled
// sample by exact byte equality, standing in for a real chip's on-silicon
// minutiae match, and MACs its response against the host's hostRandom
// challenge exactly as real firmware would.
func (d *Driver) Identify(s *sdcp.Device, hostRandom [32]byte) {
	d.mu.Lock()
	sample := d.pendingIdentifySample
	d.pendingIdentifySample = nil
	var matchedID []byte
	for idHex, enrolledSample := range d.enrolled {
		if string(enrolledSample) == string(sample) && sample != nil {
			id, err := hex.DecodeString(idHex)
			if err == nil {
				matchedID = id
			}
			break
		}
	}
	d.mu.Unlock()

	if matchedID == nil {
		s.IdentifyResult(nil, nil, nil)
		return
	}
	mac := sdcp.MAC(s.MACSecret(), "identify", hostRandom[:], matchedID)
	s.IdentifyResult(matchedID, mac, nil)
}

// Delete removes the enroll id of the action's delete target from chip
// storage, per DeleteDriver.
func (d *Driver) Delete(s *sdcp.Device) {
	target := s.Base().DeleteTarget()
	d.mu.Lock()
	delete(d.enrolled, hex.EncodeToString(target.Data))
	d.mu.Unlock()
	s.DeleteResultComplete(nil)
}

var (
	_ sdcp.Driver          = (*Driver)(nil)
	_ sdcp.ReconnectDriver = (*Driver)(nil)
	_ sdcp.DeleteDriver    = (*Driver)(nil)
)
