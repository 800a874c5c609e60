package sdcp

// Driver is the sensor-specific half of an SDCP device. Unlike
// internal/image, SDCP devices match on-chip: the driver captures and
// compares the fingerprint itself and only ever hands the session layer
// pass/fail-with-id results, never a raw image.
type Driver interface {
	// Connect starts a full handshake. The driver must produce its claim
	// and device-side ECDH point and report them via ConnectComplete.
	Connect(s *Device, hostRandom [32]byte, hostPubPoint []byte)

	// Enroll runs a capture on-chip. The driver must call SetEnrollNonce
	// exactly once during the capture, then report completion via
	// EnrollReady.
	Enroll(s *Device)

	// EnrollCommit persists the enroll id (computed by the session layer
	// from the nonce) into on-chip storage.
	EnrollCommit(s *Device, id []byte)

	// Identify runs an on-chip 1:N (or, for Verify, 1:1) comparison
	// against hostRandom, the session's freshly generated anti-replay
	// challenge, and reports the result via IdentifyResult/IdentifyRetry.
	Identify(s *Device, hostRandom [32]byte)
}

// ReconnectDriver is an optional fast-path: a device that can prove
// liveness with a single MAC instead of the full claim exchange (spec
// §4.4 "Reconnect").
type ReconnectDriver interface {
	Reconnect(s *Device, hostRandom [32]byte)
}

// DeleteDriver lets an SDCP device remove a previously enrolled id from
// on-chip storage. The target print (and its opaque id, in Print.Data) is
// read back via s.Base().DeleteTarget().
type DeleteDriver interface {
	Delete(s *Device)
}
