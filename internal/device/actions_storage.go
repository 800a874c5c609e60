package device

import "context"

// DeleteResult is the terminal outcome of DeleteAsync.
type DeleteResult struct{ Err error }

type deleteState struct {
	target *Print
}

// DeleteAsync removes target from on-device storage. Drivers without
// storage need not implement DeleteDriver: per spec §4.1 step 3, the
// absence of a delete vfunc is treated as an immediate success, not
// NotSupported, since deleting something that was never device-resident
// storage trivially succeeds.
func (d *Device) DeleteAsync(ctx context.Context, target *Print) <-chan DeleteResult {
	out := make(chan DeleteResult, 1)
	d.rx.DeferIdle(func() {
		st := &deleteState{target: target}
		finish := func(err error) { out <- DeleteResult{Err: err} }
		dd, ok := d.driver.(DeleteDriver)
		if !ok {
			d.beginAction(ActionDelete, ctx, st, finish, true, func() {
				d.DeleteComplete(nil)
			})
			return
		}
		d.beginAction(ActionDelete, ctx, st, finish, true, func() {
			d.dispatch(ActionDelete, func() { dd.Delete(d) })
		})
	})
	return out
}

// DeleteTarget returns the print the in-flight delete action targets.
func (d *Device) DeleteTarget() *Print {
	if d.action == nil || d.action.kind != ActionDelete {
		d.log.Warnf("device: DeleteTarget called outside a delete action")
		return nil
	}
	st, _ := d.action.payload.(*deleteState)
	if st == nil {
		return nil
	}
	return st.target
}

// DeleteComplete terminates the in-flight delete action.
func (d *Device) DeleteComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionDelete {
		d.log.Warnf("device: DeleteComplete called outside a delete action")
		return
	}
	d.completeAction(st, err)
}

// ListResult is the terminal outcome of ListAsync.
type ListResult struct {
	Prints []*Print
	Err    error
}

type listState struct {
	result []*Print
}

// ListAsync enumerates prints stored on the device. Devices whose driver
// doesn't implement ListDriver report NotSupported.
func (d *Device) ListAsync(ctx context.Context) <-chan ListResult {
	out := make(chan ListResult, 1)
	d.rx.DeferIdle(func() {
		ld, ok := d.driver.(ListDriver)
		if !ok {
			out <- ListResult{Err: NewError(ErrNotSupported, "driver does not support list")}
			return
		}
		st := &listState{}
		d.beginAction(ActionList, ctx, st, func(err error) {
			out <- ListResult{Prints: st.result, Err: err}
		}, true, func() {
			d.dispatch(ActionList, func() { ld.List(d) })
		})
	})
	return out
}

// ListComplete terminates the in-flight list action with the stored prints.
func (d *Device) ListComplete(prints []*Print, err error) {
	action := d.action
	if action == nil || action.kind != ActionList {
		d.log.Warnf("device: ListComplete called outside a list action")
		return
	}
	if st, ok := action.payload.(*listState); ok && err == nil {
		st.result = prints
	}
	d.completeAction(action, err)
}

// ClearResult is the terminal outcome of ClearAsync.
type ClearResult struct{ Err error }

// ClearAsync wipes all prints from on-device storage. Devices whose driver
// doesn't implement ClearStorageDriver report NotSupported.
func (d *Device) ClearAsync(ctx context.Context) <-chan ClearResult {
	out := make(chan ClearResult, 1)
	d.rx.DeferIdle(func() {
		cd, ok := d.driver.(ClearStorageDriver)
		if !ok {
			out <- ClearResult{Err: NewError(ErrNotSupported, "driver does not support clearing storage")}
			return
		}
		d.beginAction(ActionClear, ctx, nil, func(err error) {
			out <- ClearResult{Err: err}
		}, true, func() {
			d.dispatch(ActionClear, func() { cd.ClearStorage(d) })
		})
	})
	return out
}

// ClearComplete terminates the in-flight clear action.
func (d *Device) ClearComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionClear {
		d.log.Warnf("device: ClearComplete called outside a clear action")
		return
	}
	d.completeAction(st, err)
}
