// Package virtual implements an image.SensorDriver with no real hardware
// behind it: activate/deactivate requests are relayed out over a channel
// (internal/virtualbridge puts a gRPC face on that channel) and finger
// status/image events are injected back in by whatever is on the other
// end. Grounded on original_source/libfprint/drivers/virtual-device.c,
// whose sensor is entirely driven by a listener process over a Unix
// socket rather than by real silicon.
package virtual

import (
	"fprintcore/internal/device"
	"fprintcore/internal/image"
	"fprintcore/internal/obslog"
)

// CmdKind distinguishes the two signals the image pipeline can ask a
// sensor to perform.
type CmdKind int

const (
	CmdActivate CmdKind = iota
	CmdDeactivate
)

func (k CmdKind) String() string {
	if k == CmdActivate {
		return "activate"
	}
	return "deactivate"
}

// Cmd is one driver-originated command waiting to be relayed to a
// controller.
type Cmd struct {
	Kind CmdKind
}

// Driver is the virtual sensor. It implements image.SensorDriver; nothing
// else touches hardware, so every other action (enroll/verify/identify/
// capture) runs entirely inside image.Device once this turns
// finger-on/off and image bytes into the right calls.
type Driver struct {
	log *obslog.Logger
	img *image.Device
	out chan Cmd
}

// New builds a virtual sensor driver. Call SetImageDevice once the owning
// image.Device exists, mirroring image.Device's own construction-cycle
// pattern.
func New(log *obslog.Logger) *Driver {
	return &Driver{log: log, out: make(chan Cmd, 8)}
}

// SetImageDevice wires the owning image-device pipeline in.
func (d *Driver) SetImageDevice(img *image.Device) { d.img = img }

// Commands drains driver-originated activate/deactivate requests for a
// relay (internal/virtualbridge, or a test) to act on.
func (d *Driver) Commands() <-chan Cmd { return d.out }

// --- image.SensorDriver ---

func (d *Driver) Activate(img *image.Device) {
	select {
	case d.out <- Cmd{Kind: CmdActivate}:
	default:
		d.log.Warnf("virtual: command channel full, dropping activate")
	}
}

func (d *Driver) Deactivate(img *image.Device) {
	select {
	case d.out <- Cmd{Kind: CmdDeactivate}:
	default:
		d.log.Warnf("virtual: command channel full, dropping deactivate")
	}
}

// --- stimulus injection, called by whatever is relaying controller events ---

// ActivateAck completes a pending Activate; err non-nil fails the action.
func (d *Driver) ActivateAck(err error) { d.img.ActivateComplete(err) }

// DeactivateAck completes a pending Deactivate.
func (d *Driver) DeactivateAck(err error) { d.img.DeactivateComplete(err) }

// FingerStatus reports a simulated finger touching or leaving the sensor.
func (d *Driver) FingerStatus(on bool) { d.img.ReportFingerStatus(on) }

// Image delivers a simulated raw scan.
func (d *Driver) Image(raw []byte) { d.img.ReportImageCaptured(raw) }

// Retry reports a simulated transient scan failure.
func (d *Driver) Retry(code device.RetryCode, msg string) {
	d.img.ReportRetry(device.NewRetryError(code, msg))
}
