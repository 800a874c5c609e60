// Package fprint is the public API: a fingerprint reader exposed as a
// small set of blocking calls (Open, Enroll, Verify, Identify, Capture,
// List, Delete, Clear, Close) layered over internal/device's
// channel-based action model, the way pkg/hashing/core.HashMethod fronts
// teacher's internal hashing backends with one documented interface
// callers never need to reach past.
package fprint

import (
	"context"
	"fmt"

	"fprintcore/internal/device"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

// Re-exported data model (spec §3) and error domains (spec §7), so
// callers never need to import fprintcore/internal/device directly — it
// isn't importable outside this module anyway, being under internal/.
type (
	Print          = device.Print
	PrintType      = device.PrintType
	Finger         = device.Finger
	ScanType       = device.ScanType
	Features       = device.Features
	MatchResult    = device.MatchResult
	EnrollProgress = device.EnrollProgress
	RetryCode      = device.RetryCode
	RetryError     = device.RetryError
	ErrorCode      = device.ErrorCode
	Error          = device.Error
	Driver         = device.Driver
)

const (
	PrintUndefined = device.PrintUndefined
	PrintRaw       = device.PrintRaw
	PrintNBIS      = device.PrintNBIS
	PrintSDCP      = device.PrintSDCP
)

const (
	ScanSwipe = device.ScanSwipe
	ScanPress = device.ScanPress
)

const (
	MatchSuccess = device.MatchSuccess
	MatchFail    = device.MatchFail
	MatchError   = device.MatchError
)

const (
	ErrGeneral      = device.ErrGeneral
	ErrNotSupported = device.ErrNotSupported
	ErrNotOpen      = device.ErrNotOpen
	ErrAlreadyOpen  = device.ErrAlreadyOpen
	ErrBusy         = device.ErrBusy
	ErrProto        = device.ErrProto
	ErrDataInvalid  = device.ErrDataInvalid
	ErrDataFull     = device.ErrDataFull
	ErrDataNotFound = device.ErrDataNotFound
	ErrUntrusted    = device.ErrUntrusted
)

// NewError and NewRetryError build the two error domains spec §7
// describes, for callers implementing their own Driver.
func NewError(code ErrorCode, msg string) *Error           { return device.NewError(code, msg) }
func NewRetryError(code RetryCode, msg string) *RetryError { return device.NewRetryError(code, msg) }

// Config names a device instance (spec §3 "Device identity").
type Config struct {
	DriverID       string
	DeviceID       string
	Name           string
	NrEnrollStages int
	ScanType       ScanType
	Features       Features
	DriverData     uint64
	Transport      device.Transport

	// RefuseCancelOnShortOps controls whether a cancellation arriving
	// during a List/Delete/Clear/Probe call is honored (true) or ignored
	// (false, the default, matching the reference implementation).
	RefuseCancelOnShortOps bool
}

// Device is a fingerprint reader: a driver plus the reactor goroutine and
// device-core state machine driving it. The zero value is not usable;
// build one with New.
type Device struct {
	rx     *reactor.Reactor
	base   *device.Device
	cancel context.CancelFunc
}

// baseSetter is implemented by drivers that need a back-reference to the
// device.Device they're wired into — internal/sdcp.Device does, since it
// drives reconnect/enroll/identify completions through the same base the
// reactor owns. New wires it automatically when present.
type baseSetter interface {
	SetBase(*device.Device)
}

// New starts the device's reactor goroutine, builds the driver against it
// and binds the two together. newDriver receives the reactor so drivers
// that need it (internal/sdcp.Device, for its own deferred completions)
// can be constructed against the same one the device uses. The device
// itself is not yet open; call Open to run the driver's open/connect
// handshake.
func New(newDriver func(*reactor.Reactor) Driver, cfg Config, log *obslog.Logger) *Device {
	if log == nil {
		log = obslog.Nop()
	}
	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	go rx.Run(ctx)

	driver := newDriver(rx)
	base := device.New(rx, driver, log, device.Config{
		DriverID: cfg.DriverID, DeviceID: cfg.DeviceID, Name: cfg.Name,
		NrEnrollStages: cfg.NrEnrollStages, ScanType: cfg.ScanType,
		Features: cfg.Features, DriverData: cfg.DriverData, Transport: cfg.Transport,
		RefuseCancelOnShortOps: cfg.RefuseCancelOnShortOps,
	})
	if bs, ok := driver.(baseSetter); ok {
		bs.SetBase(base)
	}
	return &Device{rx: rx, base: base, cancel: cancel}
}

// DriverID, DeviceID, Name, NrEnrollStages, ScanType and Features mirror
// the accessors internal/device.Device exposes.
func (d *Device) DriverID() string    { return d.base.DriverID() }
func (d *Device) DeviceID() string    { return d.base.DeviceID() }
func (d *Device) Name() string        { return d.base.Name() }
func (d *Device) NrEnrollStages() int { return d.base.NrEnrollStages() }
func (d *Device) ScanType() ScanType  { return d.base.ScanType() }
func (d *Device) Features() Features  { return d.base.Features() }
func (d *Device) IsOpen() bool        { return d.base.IsOpen() }

// Open runs the driver's open/connect handshake (spec §4.1 "Open").
func (d *Device) Open(ctx context.Context) error {
	return (<-d.base.OpenAsync(ctx)).Err
}

// Close runs the driver's close handshake and stops the reactor
// goroutine once it completes. The Device must not be used afterward.
func (d *Device) Close(ctx context.Context) error {
	err := (<-d.base.CloseAsync(ctx)).Err
	d.cancel()
	return err
}

// Enroll runs an NrEnrollStages-stage enrollment against template,
// invoking onProgress once per stage (nil is fine if the caller doesn't
// need progress). The returned Print is nil on error.
func (d *Device) Enroll(ctx context.Context, template *Print, onProgress func(EnrollProgress)) (*Print, error) {
	res := <-d.base.EnrollAsync(ctx, template, onProgress)
	return res.Print, res.Err
}

// Verify runs a 1:1 match against target, returning the final match
// result and the last scanned print (which may be nil on error).
func (d *Device) Verify(ctx context.Context, target *Print) (MatchResult, *Print, error) {
	res := <-d.base.VerifyAsync(ctx, target)
	return res.Match, res.Scanned, res.Err
}

// Identify runs a 1:N match against gallery, returning the matched print
// (nil if none matched) and the scanned print.
func (d *Device) Identify(ctx context.Context, gallery []*Print) (matched, scanned *Print, err error) {
	res := <-d.base.IdentifyAsync(ctx, gallery)
	return res.Matched, res.Scanned, res.Err
}

// Capture returns a single raw scan image. Returns ErrNotSupported if the
// driver doesn't implement CaptureDriver.
func (d *Device) Capture(ctx context.Context) ([]byte, error) {
	res := <-d.base.CaptureAsync(ctx)
	return res.Image, res.Err
}

// List returns every print stored on the device. Returns ErrNotSupported
// if the driver doesn't implement ListDriver.
func (d *Device) List(ctx context.Context) ([]*Print, error) {
	res := <-d.base.ListAsync(ctx)
	return res.Prints, res.Err
}

// Delete removes target from on-device storage. Completes successfully
// immediately if the driver has no on-device storage at all (spec §4.1
// step 3).
func (d *Device) Delete(ctx context.Context, target *Print) error {
	return (<-d.base.DeleteAsync(ctx, target)).Err
}

// Clear wipes every print from on-device storage. Returns
// ErrNotSupported if the driver doesn't implement ClearStorageDriver.
func (d *Device) Clear(ctx context.Context) error {
	return (<-d.base.ClearAsync(ctx)).Err
}

// String implements fmt.Stringer for diagnostics, e.g. cmd/fprint-monitor.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s/%s)", d.Name(), d.DriverID(), d.DeviceID())
}
