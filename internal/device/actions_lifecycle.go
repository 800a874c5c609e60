package device

import "context"

// OpenResult is the outcome of OpenAsync.
type OpenResult struct{ Err error }

// OpenAsync opens the device: transport first, then the driver's Open
// vfunc (spec §4.1 "Open/close ordering"). Admitted only when the device
// is not already open and no other action is in flight.
func (d *Device) OpenAsync(ctx context.Context) <-chan OpenResult {
	out := make(chan OpenResult, 1)
	d.rx.DeferIdle(func() {
		d.beginAction(ActionOpen, ctx, nil, func(err error) {
			out <- OpenResult{Err: err}
		}, false, func() {
			if d.transport != nil {
				if err := d.transport.Open(ctx); err != nil {
					d.completeAction(d.action, NewError(ErrGeneral, err.Error()))
					return
				}
			}
			d.dispatch(ActionOpen, func() { d.driver.Open(d) })
		})
	})
	return out
}

// OpenComplete is called by the driver's Open vfunc once it has finished.
func (d *Device) OpenComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionOpen {
		d.log.Warnf("device: OpenComplete called outside an open action")
		return
	}
	if err == nil {
		d.isOpen = true
	}
	d.completeAction(st, err)
}

// CloseResult is the outcome of CloseAsync.
type CloseResult struct{ Err error }

// CloseAsync closes the device: the driver's Close vfunc runs first, then
// the transport is released (spec §4.1 "Open/close ordering").
func (d *Device) CloseAsync(ctx context.Context) <-chan CloseResult {
	out := make(chan CloseResult, 1)
	d.rx.DeferIdle(func() {
		d.beginAction(ActionClose, ctx, nil, func(err error) {
			out <- CloseResult{Err: err}
		}, true, func() {
			d.dispatch(ActionClose, func() { d.driver.Close(d) })
		})
	})
	return out
}

// CloseComplete is called by the driver's Close vfunc. The transport is
// released here, after the driver has relinquished the device, regardless
// of whether the driver reported an error.
func (d *Device) CloseComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionClose {
		d.log.Warnf("device: CloseComplete called outside a close action")
		return
	}
	if d.transport != nil {
		if tErr := d.transport.Close(context.Background()); tErr != nil && err == nil {
			err = NewError(ErrGeneral, tErr.Error())
		}
	}
	d.isOpen = false
	d.completeAction(st, err)
}

// ProbeResult is the outcome of ProbeAsync: Ok reports whether a compatible
// sensor was found at the configured address.
type ProbeResult struct {
	Ok  bool
	Err error
}

// ProbeAsync runs the driver's optional probe step, used by discovery code
// to confirm a USB device before committing to Open. Devices whose driver
// doesn't implement ProbeDriver report NotSupported.
func (d *Device) ProbeAsync(ctx context.Context) <-chan ProbeResult {
	out := make(chan ProbeResult, 1)
	d.rx.DeferIdle(func() {
		finish := func(err error) {
			out <- ProbeResult{Ok: err == nil, Err: err}
		}
		pd, ok := d.driver.(ProbeDriver)
		if !ok {
			finish(NewError(ErrNotSupported, "driver does not support probe"))
			return
		}
		d.beginAction(ActionProbe, ctx, nil, finish, false, func() {
			d.dispatch(ActionProbe, func() { pd.Probe(d) })
		})
	})
	return out
}

// ProbeComplete is called by the driver's Probe vfunc.
func (d *Device) ProbeComplete(ok bool, err error) {
	st := d.action
	if st == nil || st.kind != ActionProbe {
		d.log.Warnf("device: ProbeComplete called outside a probe action")
		return
	}
	if ok && err == nil {
		d.completeAction(st, nil)
		return
	}
	if err == nil {
		err = NewError(ErrGeneral, "probe failed")
	}
	d.completeAction(st, err)
}
