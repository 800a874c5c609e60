package sdcp

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"

	"fprintcore/internal/device"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

// Device is the SDCP session layer (spec §4.4): a device.Driver that
// wraps a match-on-chip Driver with the ECDH/KDF/MAC handshake and the
// per-action MAC verification every enroll/identify/verify result must
// pass before it's trusted. Grounded on
// original_source/libfprint/fpi-sdcp-device.c.
type Device struct {
	rx     *reactor.Reactor
	driver Driver
	trust  *TrustStore
	log    *obslog.Logger

	base *device.Device

	macSecret []byte // nil until a successful Connect or Reconnect

	// handshake-in-flight state
	hostPriv            *ecdh.PrivateKey
	hostRandom          [32]byte
	attemptingReconnect bool

	// enroll-in-flight state
	enrollNonce     []byte
	enrollNonceSet  bool
	pendingEnrollID []byte

	// identify/verify-in-flight state: the host-generated anti-replay
	// challenge the driver's response must be MAC'd against (spec §4.4
	// "Identify / verify" — r_h originates at the host, never the device).
	identifyRH [32]byte
}

// New builds an SDCP session layer over driver. trust validates the
// manufacturer certificate chain during Connect.
func New(rx *reactor.Reactor, driver Driver, trust *TrustStore, log *obslog.Logger) *Device {
	return &Device{rx: rx, driver: driver, trust: trust, log: log}
}

// SetBase wires the owning device.Device in, mirroring internal/image's
// construction-cycle workaround.
func (s *Device) SetBase(base *device.Device) { s.base = base }

// Base exposes the owning device.Device to Driver implementations that
// need to read action payloads (e.g. DeleteTarget, IdentifyGallery).
func (s *Device) Base() *device.Device { return s.base }

// Connected reports whether a handshake has ever succeeded, i.e. whether
// the next Open will attempt Reconnect rather than a full Connect.
func (s *Device) Connected() bool { return s.macSecret != nil }

// AttemptingReconnect reports whether the in-flight Open is on the
// reconnect fast path (for logging/diagnostics only).
func (s *Device) AttemptingReconnect() bool { return s.attemptingReconnect }

// MACSecret exposes the session's established mac_secret to Driver
// implementations that simulate on-chip firmware in the same process
// (drivers/moctest): real hardware derives its own copy independently
// during Connect, so a test double reading it back here is standing in
// for that derivation, not bypassing it.
func (s *Device) MACSecret() []byte { return s.macSecret }

// --- device.Driver: Open/Close drive the handshake ---

func (s *Device) Open(d *device.Device) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		d.OpenComplete(device.NewError(device.ErrGeneral, err.Error()))
		return
	}
	s.hostPriv = priv
	if _, err := rand.Read(s.hostRandom[:]); err != nil {
		d.OpenComplete(device.NewError(device.ErrGeneral, err.Error()))
		return
	}

	if s.macSecret != nil {
		if rd, ok := s.driver.(ReconnectDriver); ok {
			s.attemptingReconnect = true
			rd.Reconnect(s, s.hostRandom)
			return
		}
	}
	s.attemptingReconnect = false
	s.driver.Connect(s, s.hostRandom, s.hostPriv.PublicKey().Bytes())
}

func (s *Device) Close(d *device.Device) {
	// mac_secret is retained across Close so a subsequent Open can attempt
	// Reconnect (spec §4.4 "Reconnect").
	d.CloseComplete(nil)
}

// ReconnectComplete is called by a ReconnectDriver with the device's MAC
// over the host's random nonce. A mismatch (or driver error) falls back
// silently to a full Connect, per spec §4.4 "Reconnect... on failure,
// falls back to Connect without surfacing an error to the caller".
func (s *Device) ReconnectComplete(mac []byte, err error) {
	if err == nil {
		want := MAC(s.macSecret, "reconnect", s.hostRandom[:])
		if subtle.ConstantTimeCompare(mac, want) == 1 {
			s.base.OpenComplete(nil)
			return
		}
	}
	s.attemptingReconnect = false
	s.driver.Connect(s, s.hostRandom, s.hostPriv.PublicKey().Bytes())
}

// ConnectComplete is called by Driver.Connect with the device's random
// nonce, its claim, and the connect MAC. This runs the full claim
// verification pipeline (spec §4.4 steps a-f) and, on success, derives and
// stores mac_secret for the remainder of the session.
func (s *Device) ConnectComplete(deviceRandom [32]byte, claim Claim, connectMAC []byte, err error) {
	if err != nil {
		s.base.OpenComplete(device.NewError(device.ErrGeneral, err.Error()))
		return
	}

	macSecret, trustErr := s.verifyClaim(claim, connectMAC, deviceRandom)
	if trustErr != nil {
		s.log.Warnf("sdcp: claim rejected: %v", trustErr)
		s.base.OpenComplete(device.NewError(device.ErrUntrusted, trustErr.Error()))
		return
	}
	s.macSecret = macSecret
	s.base.OpenComplete(nil)
}

// --- Enroll ---

func (s *Device) Enroll(d *device.Device) {
	s.enrollNonce = nil
	s.enrollNonceSet = false
	s.pendingEnrollID = nil
	s.driver.Enroll(s)
}

// SetEnrollNonce records the device-chosen nonce an in-progress enroll
// capture produced. Must be called exactly once before EnrollReady.
func (s *Device) SetEnrollNonce(nonce []byte) {
	if s.enrollNonceSet {
		s.log.Warnf("sdcp: SetEnrollNonce called twice in one enroll action")
		return
	}
	s.enrollNonce = append([]byte(nil), nonce...)
	s.enrollNonceSet = true
}

// EnrollReady is called once the on-chip capture finishes. err carries any
// capture failure (including retryable ones via the base Device's normal
// *RetryError convention, surfaced through EnrollComplete).
func (s *Device) EnrollReady(err error) {
	if err != nil {
		s.base.EnrollComplete(nil, err)
		return
	}
	if !s.enrollNonceSet {
		s.base.EnrollComplete(nil, device.NewError(device.ErrProto, "driver completed enroll capture without a nonce"))
		return
	}
	id := MAC(s.macSecret, "enroll", s.enrollNonce)
	s.pendingEnrollID = id
	s.driver.EnrollCommit(s, id)
}

// EnrollCommitComplete is called once the driver has durably stored the
// enroll id on-chip.
func (s *Device) EnrollCommitComplete(err error) {
	if err != nil {
		s.base.EnrollComplete(nil, err)
		return
	}
	template := s.base.EnrollTemplate()
	print := &device.Print{Type: device.PrintSDCP, DeviceStored: true, Data: s.pendingEnrollID}
	if template != nil {
		print.Username, print.HasUsername = template.Username, template.HasUsername
		print.FingerID, print.HasFingerID = template.FingerID, template.HasFingerID
		print.Description = template.Description
	}
	s.base.EnrollComplete(print, nil)
}

// --- Verify / Identify ---

func (s *Device) Verify(d *device.Device)   { s.beginIdentify() }
func (s *Device) Identify(d *device.Device) { s.beginIdentify() }

// beginIdentify generates a fresh host-side anti-replay challenge and
// hands it to the driver (spec §4.4 "Identify / verify": "Generate a
// fresh r_h, call driver identify()"). The driver must MAC its response
// against exactly this value; the base class never trusts a
// device-supplied r_h.
func (s *Device) beginIdentify() {
	if _, err := rand.Read(s.identifyRH[:]); err != nil {
		s.finishMatch(nil, device.NewError(device.ErrGeneral, err.Error()))
		return
	}
	s.driver.Identify(s, s.identifyRH)
}

// IdentifyResult is called by Driver.Identify once the on-chip comparison
// finishes: id is the enroll id the sensor believes matched (nil if
// none), mac authenticates the response against the host's own r_h from
// beginIdentify.
func (s *Device) IdentifyResult(id []byte, mac []byte, err error) {
	if err != nil {
		s.finishMatch(nil, err)
		return
	}
	if id == nil {
		s.finishMatch(nil, nil)
		return
	}
	want := MAC(s.macSecret, "identify", s.identifyRH[:], id)
	if subtle.ConstantTimeCompare(mac, want) != 1 {
		s.finishMatch(nil, device.NewError(device.ErrUntrusted, "identify response MAC mismatch"))
		return
	}
	s.finishMatch(&device.Print{Type: device.PrintSDCP, Data: id}, nil)
}

// IdentifyRetry surfaces a retryable scan failure to a verify or identify
// action without completing it.
func (s *Device) IdentifyRetry(reason *device.RetryError) {
	switch s.base.ActionKind() {
	case device.ActionVerify:
		s.base.ReportVerify(device.MatchError, nil, reason)
	case device.ActionIdentify:
		s.base.ReportIdentify(nil, nil, reason)
	}
}

func (s *Device) finishMatch(scanned *device.Print, err error) {
	switch s.base.ActionKind() {
	case device.ActionVerify:
		if err != nil {
			s.base.ReportVerify(device.MatchError, nil, err)
			s.base.VerifyComplete(nil)
			return
		}
		target := s.base.VerifyTarget()
		if scanned != nil && scanned.Equal(target) {
			s.base.ReportVerify(device.MatchSuccess, scanned, nil)
		} else {
			s.base.ReportVerify(device.MatchFail, scanned, nil)
		}
		s.base.VerifyComplete(nil)
	case device.ActionIdentify:
		if err != nil {
			s.base.ReportIdentify(nil, nil, err)
			s.base.IdentifyComplete(nil)
			return
		}
		gallery := s.base.IdentifyGallery()
		var matched *device.Print
		if scanned != nil {
			for _, cand := range gallery {
				if scanned.Equal(cand) {
					matched = cand
					break
				}
			}
		}
		s.base.ReportIdentify(matched, scanned, nil)
		s.base.IdentifyComplete(nil)
	}
}

// --- Delete ---

func (s *Device) Delete(d *device.Device) {
	dd, ok := s.driver.(DeleteDriver)
	if !ok {
		s.base.DeleteComplete(nil)
		return
	}
	dd.Delete(s)
}

// DeleteResultComplete is called by a DeleteDriver once the on-chip
// record has been removed.
func (s *Device) DeleteResultComplete(err error) { s.base.DeleteComplete(err) }
