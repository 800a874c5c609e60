// Package image implements the image-device pipeline (spec §4.3): a
// device.Driver that turns a sensor's activate/deactivate/finger-status/
// image-captured signals into the open/close/enroll/verify/identify/capture
// actions (it implements none of the storage actions), delegating the actual
// print comparison to an internal/minutiae collaborator. Grounded on
// original_source/libfprint/fp-image-device.c.
package image

import (
	"time"

	"fprintcore/internal/device"
	"fprintcore/internal/minutiae"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

// state is the imaging-layer's internal state, independent of (but driven
// by) the base Device's action slot.
type state int

const (
	stateInactive state = iota
	stateActivating
	stateAwaitFingerOn
	stateCapture
	stateAwaitFingerOff
	stateDeactivating
)

// SensorDriver is the sensor-specific half of an image device: turning the
// abstract activate/deactivate calls into real I/O, and calling back into
// Device via ActivateComplete/DeactivateComplete/ReportFingerStatus/
// ReportImageCaptured/ReportRetry as the hardware reports events.
type SensorDriver interface {
	Activate(img *Device)
	Deactivate(img *Device)
}

// Device is the image-device pipeline layer. It implements device.Driver
// (and the optional capture/identify vfuncs) so it can be handed directly
// to device.New as the driver.
type Device struct {
	rx       *reactor.Reactor
	sensor   SensorDriver
	detector minutiae.Detector
	matcher  minutiae.Matcher
	log      *obslog.Logger

	base *device.Device

	st           state
	graceTimer   reactor.TimeoutHandle
	hasGrace     bool
	pendingStart func()
	fingerOn     bool

	// per-action bookkeeping, valid only while base.ActionKind() is one
	// of enroll/verify/identify/capture.
	enrollStage    int
	enrollTemplate *minutiae.Template
	verifyTarget   *minutiae.Template
	identifyTmpls  []*minutiae.Template
}

// New builds an image-device pipeline. Call SetBase once the owning
// device.Device exists (there's an unavoidable construction cycle: Device
// needs a device.Driver, and this pipeline needs to call back into its
// device.Device).
func New(rx *reactor.Reactor, sensor SensorDriver, detector minutiae.Detector, matcher minutiae.Matcher, log *obslog.Logger) *Device {
	return &Device{rx: rx, sensor: sensor, detector: detector, matcher: matcher, log: log}
}

// SetBase wires the owning device.Device in. Must be called before any
// action is dispatched.
func (img *Device) SetBase(base *device.Device) { img.base = base }

const graceTimeout = 100 * time.Millisecond

// --- device.Driver ---

func (img *Device) Open(d *device.Device)  { d.OpenComplete(nil) }
func (img *Device) Close(d *device.Device) { d.CloseComplete(nil) }

func (img *Device) Enroll(d *device.Device) {
	img.enrollStage = 0
	img.enrollTemplate = nil
	img.beginAction()
}

func (img *Device) Verify(d *device.Device) {
	target := d.VerifyTarget()
	tmpl, err := img.detector.Detect(target.Data)
	if err != nil {
		d.VerifyComplete(device.NewError(device.ErrDataInvalid, err.Error()))
		return
	}
	img.verifyTarget = tmpl
	img.beginAction()
}

func (img *Device) Identify(d *device.Device) {
	gallery := d.IdentifyGallery()
	img.identifyTmpls = make([]*minutiae.Template, len(gallery))
	for i, p := range gallery {
		tmpl, err := img.detector.Detect(p.Data)
		if err != nil {
			d.IdentifyComplete(device.NewError(device.ErrDataInvalid, err.Error()))
			return
		}
		img.identifyTmpls[i] = tmpl
	}
	img.beginAction()
}

func (img *Device) Capture(d *device.Device) {
	img.beginAction()
}

// beginAction starts (or queues) activation per the state transition table
// in spec §4.3, including the deactivation-overlap rule.
func (img *Device) beginAction() {
	if img.st == stateDeactivating {
		img.pendingStart = img.doActivate
		img.hasGrace = true
		img.graceTimer = img.rx.AddTimeout(graceTimeout, img.onGraceExpired)
		return
	}
	img.doActivate()
}

// onGraceExpired fires once, 100ms after a new action was queued behind an
// in-flight deactivation (spec §4.3 "Deactivation overlap"). If the sensor
// still hasn't gone inactive by then, the queued action fails outright
// instead of waiting indefinitely.
func (img *Device) onGraceExpired() {
	img.hasGrace = false
	if img.st != stateDeactivating {
		return
	}
	img.pendingStart = nil
	if img.fingerOn {
		img.failCurrentAction(device.NewRetryError(device.RetryRemoveFinger, "sensor still deactivating with finger present"))
		return
	}
	img.failCurrentAction(device.NewRetryError(device.RetryGeneral, "sensor did not finish deactivating in time"))
}

func (img *Device) doActivate() {
	img.st = stateActivating
	img.sensor.Activate(img)
}

// ActivateComplete is called by SensorDriver once activation finishes.
func (img *Device) ActivateComplete(err error) {
	if err != nil {
		img.st = stateInactive
		img.failCurrentAction(err)
		return
	}
	img.st = stateAwaitFingerOn
}

func (img *Device) beginDeactivate() {
	img.st = stateDeactivating
	img.sensor.Deactivate(img)
}

// DeactivateComplete is called by SensorDriver once deactivation finishes.
func (img *Device) DeactivateComplete(err error) {
	img.st = stateInactive
	if img.hasGrace {
		img.rx.CancelTimeout(img.graceTimer)
		img.hasGrace = false
	}
	if pending := img.pendingStart; pending != nil {
		img.pendingStart = nil
		pending()
	}
}

// ReportFingerStatus is called by SensorDriver when the finger goes on or
// off the sensor.
func (img *Device) ReportFingerStatus(on bool) {
	img.fingerOn = on
	switch img.st {
	case stateAwaitFingerOn:
		if on {
			img.st = stateCapture
		}
	case stateCapture:
		if !on {
			// Finger lifted before the sensor delivered an image.
			img.failCurrentAction(device.NewRetryError(device.RetryGeneral, "finger removed before image capture"))
			img.beginDeactivate()
		}
	case stateAwaitFingerOff:
		if !on {
			if img.base.ActionKind() == device.ActionEnroll && img.enrollStage < img.base.NrEnrollStages() {
				img.st = stateAwaitFingerOn
				return
			}
			img.beginDeactivate()
		}
	}
}

// ReportRetry is called by SensorDriver when a scan needs to be retried
// (spec §4.3 "any active | retry reported"). During enroll the retry is
// reported as progress and the action continues; any other action fails
// with the retry error.
func (img *Device) ReportRetry(reason *device.RetryError) {
	if img.base.ActionKind() == device.ActionEnroll {
		img.base.ReportEnrollProgress(img.enrollStage, nil, reason)
		return
	}
	img.failCurrentAction(reason)
}

func (img *Device) failCurrentAction(err error) {
	img.base.ActionError(err)
}

// ReportImageCaptured is called by SensorDriver with a raw scan image.
func (img *Device) ReportImageCaptured(raw []byte) {
	if img.st != stateCapture {
		img.log.Warnf("image: ReportImageCaptured outside capture state (st=%d)", img.st)
		return
	}
	img.st = stateAwaitFingerOff

	switch img.base.ActionKind() {
	case device.ActionCapture:
		img.base.CaptureComplete(raw, nil)
	case device.ActionEnroll:
		img.handleEnrollCapture(raw)
	case device.ActionVerify:
		img.handleVerifyCapture(raw)
	case device.ActionIdentify:
		img.handleIdentifyCapture(raw)
	}
}

func (img *Device) handleEnrollCapture(raw []byte) {
	tmpl, err := img.detector.Detect(raw)
	if err != nil {
		img.base.EnrollComplete(nil, device.NewError(device.ErrDataInvalid, err.Error()))
		return
	}
	img.enrollTemplate = mergeTemplate(img.enrollTemplate, tmpl)
	img.enrollStage++

	total := img.base.NrEnrollStages()
	if img.enrollStage >= total {
		print := &device.Print{Type: device.PrintRaw, Data: img.enrollTemplate.Data}
		img.base.ReportEnrollProgress(img.enrollStage, print, nil)
		img.base.EnrollComplete(print, nil)
		return
	}
	img.base.ReportEnrollProgress(img.enrollStage, nil, nil)
}

func (img *Device) handleVerifyCapture(raw []byte) {
	tmpl, err := img.detector.Detect(raw)
	if err != nil {
		img.base.VerifyComplete(device.NewError(device.ErrDataInvalid, err.Error()))
		return
	}
	scanned := &device.Print{Type: device.PrintRaw, Data: tmpl.Data}
	if minutiae.Match(img.matcher, tmpl, img.verifyTarget) {
		img.base.ReportVerify(device.MatchSuccess, scanned, nil)
	} else {
		img.base.ReportVerify(device.MatchFail, scanned, nil)
	}
	img.base.VerifyComplete(nil)
}

func (img *Device) handleIdentifyCapture(raw []byte) {
	tmpl, err := img.detector.Detect(raw)
	if err != nil {
		img.base.IdentifyComplete(device.NewError(device.ErrDataInvalid, err.Error()))
		return
	}
	scanned := &device.Print{Type: device.PrintRaw, Data: tmpl.Data}
	gallery := img.base.IdentifyGallery()
	for i, cand := range img.identifyTmpls {
		if minutiae.Match(img.matcher, tmpl, cand) {
			img.base.ReportIdentify(gallery[i], scanned, nil)
			img.base.IdentifyComplete(nil)
			return
		}
	}
	img.base.ReportIdentify(nil, scanned, nil)
	img.base.IdentifyComplete(nil)
}

// mergeTemplate folds an additional per-stage capture into the
// accumulating enroll template. The real merge strategy is a minutiae
// concern (out of scope per spec §1); this concatenates, which is enough
// to drive Detect/Score for the deterministic test matcher.
func mergeTemplate(acc, next *minutiae.Template) *minutiae.Template {
	if acc == nil {
		return next
	}
	return &minutiae.Template{Data: append(append([]byte(nil), acc.Data...), next.Data...)}
}
