package device

import "context"

// EnrollProgress is one progress notification emitted during an enroll
// action (spec §4.1 "Enroll"). Retry is set when the scan needs to be
// retried (too short, re-center, remove finger) without aborting the
// action; Partial may carry a driver-specific partial print on success.
type EnrollProgress struct {
	Stage   int
	Partial *Print
	Retry   *RetryError
}

// EnrollResult is the terminal outcome of EnrollAsync.
type EnrollResult struct {
	Print *Print
	Err   error
}

type enrollState struct {
	template   *Print
	onProgress func(EnrollProgress)
	result     *Print
}

// EnrollAsync runs an nrEnrollStages-stage enrollment. onProgress is
// invoked once per stage (spec §4.1), always on the reactor goroutine and
// always deferred relative to the driver call that produced it.
func (d *Device) EnrollAsync(ctx context.Context, template *Print, onProgress func(EnrollProgress)) <-chan EnrollResult {
	out := make(chan EnrollResult, 1)
	d.rx.DeferIdle(func() {
		st := &enrollState{template: template, onProgress: onProgress}
		d.beginAction(ActionEnroll, ctx, st, func(err error) {
			out <- EnrollResult{Print: st.result, Err: err}
		}, true, func() {
			d.dispatch(ActionEnroll, func() { d.driver.Enroll(d) })
		})
	})
	return out
}

// EnrollTemplate returns the print template the in-flight enroll action
// was started with (its Username/FingerID are typically pre-filled by the
// caller; Data is empty until the driver fills it in at EnrollComplete).
func (d *Device) EnrollTemplate() *Print {
	st := d.currentEnroll("EnrollTemplate")
	if st == nil {
		return nil
	}
	return st.template
}

// ReportEnrollProgress reports one stage of an in-flight enroll action to
// the caller's progress callback, without terminating the action. May be
// called any number of times before EnrollComplete.
func (d *Device) ReportEnrollProgress(stage int, partial *Print, retry *RetryError) {
	st := d.currentEnroll("ReportEnrollProgress")
	if st == nil {
		return
	}
	cb := st.onProgress
	d.rx.DeferIdle(func() {
		if cb != nil {
			cb(EnrollProgress{Stage: stage, Partial: partial, Retry: retry})
		}
	})
}

// EnrollComplete terminates the in-flight enroll action.
func (d *Device) EnrollComplete(print *Print, err error) {
	action := d.action
	if action == nil || action.kind != ActionEnroll {
		d.log.Warnf("device: EnrollComplete called outside an enroll action")
		return
	}
	err = d.resultOrGeneralError(ActionEnroll, print != nil, err)
	if st, ok := action.payload.(*enrollState); ok && err == nil {
		st.result = print
	}
	d.completeAction(action, err)
}

func (d *Device) currentEnroll(op string) *enrollState {
	if d.action == nil || d.action.kind != ActionEnroll {
		d.log.Warnf("device: %s called outside an enroll action", op)
		return nil
	}
	st, _ := d.action.payload.(*enrollState)
	return st
}
