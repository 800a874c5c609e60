// Package device implements the Device base class: action serialization,
// lifecycle, and dynamic dispatch to a Driver (spec §4.1). Every operation
// is asynchronous and resumes only on the owning Reactor's goroutine,
// matching the single-threaded cooperative model of spec §5.
//
// Grounded on original_source/libfprint/fp-device.c: the action slot,
// busy/not-open/already-open admission checks, the *_complete family that
// validates the in-flight action before deferring to the caller, and the
// cancellation-observer pattern all mirror FpDevice's task handling, with
// fpi_ssm's GSource idle dispatch replaced by internal/reactor.DeferIdle.
package device

import (
	"context"
	"fmt"

	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

// Transport is the minimal lifecycle surface Device needs from whatever
// carries bytes to the sensor (USB, or a virtual/gRPC-backed stand-in).
// Drivers type-assert to the richer interface their transport package
// exposes (e.g. internal/usbtransport.Transport) for actual I/O; Device
// itself only needs to sequence Open/Close around the driver's own
// Open/Close vfuncs (spec §4.1 "Open/close ordering").
type Transport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// ActionKind identifies which of the ten async operations currently holds
// the device's single action slot.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionProbe
	ActionOpen
	ActionClose
	ActionEnroll
	ActionVerify
	ActionIdentify
	ActionCapture
	ActionDelete
	ActionList
	ActionClear
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionProbe:
		return "probe"
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	case ActionEnroll:
		return "enroll"
	case ActionVerify:
		return "verify"
	case ActionIdentify:
		return "identify"
	case ActionCapture:
		return "capture"
	case ActionDelete:
		return "delete"
	case ActionList:
		return "list"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

// prop is a tiny observable property, enough to satisfy spec §3's
// "observable properties emit change notifications" without pulling in a
// GObject-style signal bus the pack has no analog for.
type prop[T comparable] struct {
	value T
	subs  []func(T)
}

func (p *prop[T]) set(v T) {
	if v == p.value {
		return
	}
	p.value = v
	for _, s := range p.subs {
		s(v)
	}
}

func (p *prop[T]) get() T { return p.value }

// Subscribe registers f to be called whenever the property changes. Must be
// called from the reactor goroutine, same as everything else touching
// Device.
func (p *prop[T]) Subscribe(f func(T)) { p.subs = append(p.subs, f) }

// Device is the base sensor handle every driver operates through. All
// fields are only ever touched from the owning Reactor's goroutine, so no
// mutex is needed — the reactor model makes concurrent access impossible
// by construction (see DESIGN.md).
type Device struct {
	rx     *reactor.Reactor
	driver Driver
	log    *obslog.Logger

	driverID string
	deviceID string
	name     string

	driverData uint64
	transport  Transport

	scanType       prop[ScanType]
	nrEnrollStages prop[int]
	features       Features

	isOpen bool

	action *actionState

	// refuseCancelOnShortOps resolves the "ignore vs refuse cancel on
	// short ops" open question: List/Delete/Clear/Probe complete almost
	// immediately and have no hardware scan to interrupt, so by default
	// (false) a cancellation request arriving during one is ignored
	// silently and the op is left to finish normally, matching the
	// reference's behavior. Setting this true makes cancellation during
	// a short op behave like any other action: the action completes
	// with Cancelled instead of its driver-reported result.
	refuseCancelOnShortOps bool
}

// Config carries the static identity a driver assigns a Device at
// construction time (spec §3 "Device").
type Config struct {
	DriverID       string
	DeviceID       string
	Name           string
	NrEnrollStages int
	ScanType       ScanType
	Features       Features
	DriverData     uint64
	Transport      Transport

	// RefuseCancelOnShortOps overrides the default "ignore" behavior for
	// cancellation arriving during a short op (Probe/Delete/List/Clear).
	RefuseCancelOnShortOps bool
}

// isShortOp reports whether kind is one of the non-interruptible,
// near-instant actions (spec §15's "short ops").
func isShortOp(kind ActionKind) bool {
	switch kind {
	case ActionProbe, ActionDelete, ActionList, ActionClear:
		return true
	default:
		return false
	}
}

// New builds a Device bound to rx and driver. The device starts closed.
func New(rx *reactor.Reactor, driver Driver, log *obslog.Logger, cfg Config) *Device {
	d := &Device{
		rx:                     rx,
		driver:                 driver,
		log:                    log,
		driverID:               cfg.DriverID,
		deviceID:               cfg.DeviceID,
		name:                   cfg.Name,
		driverData:             cfg.DriverData,
		transport:              cfg.Transport,
		features:               cfg.Features,
		refuseCancelOnShortOps: cfg.RefuseCancelOnShortOps,
	}
	d.scanType.set(cfg.ScanType)
	d.nrEnrollStages.set(cfg.NrEnrollStages)
	return d
}

func (d *Device) DriverID() string   { return d.driverID }
func (d *Device) DeviceID() string   { return d.deviceID }
func (d *Device) Name() string       { return d.name }
func (d *Device) DriverData() uint64 { return d.driverData }
func (d *Device) Features() Features { return d.features }
func (d *Device) IsOpen() bool       { return d.isOpen }
func (d *Device) ScanType() ScanType { return d.scanType.get() }
func (d *Device) NrEnrollStages() int {
	return d.nrEnrollStages.get()
}

// SetNrEnrollStages lets a driver correct the enroll-stage count once it is
// known (some sensors only learn this after Open), emitting a change
// notification if it differs.
func (d *Device) SetNrEnrollStages(n int) { d.nrEnrollStages.set(n) }

// SubscribeScanType registers a change observer for ScanType.
func (d *Device) SubscribeScanType(f func(ScanType)) { d.scanType.Subscribe(f) }

// SubscribeNrEnrollStages registers a change observer for NrEnrollStages.
func (d *Device) SubscribeNrEnrollStages(f func(int)) { d.nrEnrollStages.Subscribe(f) }

// Transport exposes the configured transport so drivers can type-assert to
// their richer interface.
func (d *Device) Transport() Transport { return d.transport }

// actionState is the single in-flight action slot (spec §3 "Action slot").
// Exactly one of these exists at a time, or none.
type actionState struct {
	kind ActionKind
	ctx  context.Context

	cancelStop      func()
	cancelled       bool
	cancelDelivered bool

	// payload is the kind-specific input/accumulator (e.g. *enrollState,
	// *verifyState); the completion trampoline below knows how to unpack
	// it and fulfill the caller's channel.
	payload any
	finish  func(err error)
}

// ActionIsCancelled reports whether the in-flight action has been
// cancelled. Drivers without a CancelDriver implementation poll this from
// their state-machine handlers instead of reacting to an async Cancel
// callback.
func (d *Device) ActionIsCancelled() bool {
	if d.action == nil {
		return false
	}
	return d.action.cancelled
}

// ActionKind returns the kind of the in-flight action, or ActionNone if the
// device is idle.
func (d *Device) ActionKind() ActionKind {
	if d.action == nil {
		return ActionNone
	}
	return d.action.kind
}

// beginAction performs the admission checks common to every async
// operation (spec §4.1 points 1-2) and, if admitted, arms the action slot
// and installs the cancellation observer. onAdmitted runs synchronously
// (we are already on the reactor goroutine by the time this is called,
// since every public Async method hops there via DeferIdle first) if and
// only if admission succeeds; otherwise finish is invoked directly with the
// admission error.
func (d *Device) beginAction(kind ActionKind, ctx context.Context, payload any, finish func(err error), requireOpen bool, onAdmitted func()) {
	if kind == ActionOpen {
		if d.isOpen {
			finish(NewError(ErrAlreadyOpen, ""))
			return
		}
	} else if requireOpen && !d.isOpen {
		finish(NewError(ErrNotOpen, ""))
		return
	}
	if d.action != nil {
		finish(NewError(ErrBusy, fmt.Sprintf("action %s in progress", d.action.kind)))
		return
	}
	if ctx != nil && ctx.Err() != nil {
		finish(Cancelled)
		return
	}

	st := &actionState{kind: kind, ctx: ctx, payload: payload, finish: finish}
	d.action = st
	st.cancelStop = d.armCancellation(st)
	onAdmitted()
}

// armCancellation bridges an arbitrary-goroutine context cancellation into
// the reactor goroutine via DeferIdle (spec §4.1 "Cancellation semantics").
// Returns a stop function to call once the action completes normally, so
// the bridging goroutine doesn't leak.
func (d *Device) armCancellation(st *actionState) func() {
	if st.ctx == nil {
		return func() {}
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-st.ctx.Done():
			d.rx.DeferIdle(func() {
				d.onActionCancelled(st)
			})
		case <-stopped:
		}
	}()
	var closeOnce bool
	return func() {
		if closeOnce {
			return
		}
		closeOnce = true
		close(stopped)
	}
}

// onActionCancelled runs on the reactor goroutine when a cancellation
// handle fires. It is a no-op if the action already completed or was
// already marked cancelled, matching "second cancellation before the first
// propagates is a no-op" (spec §4.1).
func (d *Device) onActionCancelled(st *actionState) {
	if d.action != st || st.cancelDelivered {
		return
	}
	if isShortOp(st.kind) && !d.refuseCancelOnShortOps {
		return
	}
	st.cancelled = true
	st.cancelDelivered = true
	if cd, ok := d.driver.(CancelDriver); ok {
		cd.Cancel(d)
	}
}

// completeAction validates that st is still the in-flight action, clears
// the slot, stops the cancellation bridge, and defers the caller-visible
// finish callback to the next reactor iteration (spec §8.2's
// deferred-completion property: the driver's *_complete call never
// reenters the caller synchronously).
func (d *Device) completeAction(st *actionState, err error) {
	if d.action != st {
		d.log.Warnf("device: %s complete called on stale action (current=%s)", st.kind, d.ActionKind())
		return
	}
	d.action = nil
	st.cancelStop()
	if st.cancelled && err == nil {
		err = Cancelled
	}
	finish := st.finish
	d.rx.DeferIdle(func() {
		finish(err)
	})
}

// resultOrGeneralError implements spec §4.1 point 4: if a driver completes
// an action with both a non-nil result and a non-nil error, the result is
// dropped and a General error is substituted, with a warning logged.
func (d *Device) resultOrGeneralError(kind ActionKind, haveResult bool, err error) error {
	if haveResult && err != nil {
		d.log.Warnf("device: %s completed with both a result and error %v; dropping result", kind, err)
		return NewError(ErrGeneral, "driver reported both a result and an error")
	}
	if !haveResult && err == nil {
		d.log.Warnf("device: %s completed with neither a result nor an error", kind)
		return NewError(ErrGeneral, "driver completed without a result or an error")
	}
	return err
}

// dispatch runs fn (the vfunc closing over the driver) as the first step of
// the admitted action. Kept as a named hook point for the logging every
// Async method does around driver entry.
func (d *Device) dispatch(kind ActionKind, fn func()) {
	d.log.Debugf("device: dispatching %s", kind)
	fn()
}

// ActionError is the fallback completion path (spec §4.1 point 5): a
// driver that hits an error before it can assemble the action-specific
// result calls this instead of threading the error through the
// action-specific *_complete signature.
func (d *Device) ActionError(err error) {
	if d.action == nil {
		d.log.Warnf("device: ActionError called with no action in flight")
		return
	}
	switch d.action.kind {
	case ActionProbe:
		d.ProbeComplete(false, err)
	case ActionOpen:
		d.OpenComplete(err)
	case ActionClose:
		d.CloseComplete(err)
	case ActionEnroll:
		d.EnrollComplete(nil, err)
	case ActionVerify:
		d.VerifyComplete(err)
	case ActionIdentify:
		d.IdentifyComplete(err)
	case ActionCapture:
		d.CaptureComplete(nil, err)
	case ActionDelete:
		d.DeleteComplete(err)
	case ActionList:
		d.ListComplete(nil, err)
	case ActionClear:
		d.ClearComplete(err)
	}
}
