package device

import "context"

// CaptureResult is the terminal outcome of CaptureAsync.
type CaptureResult struct {
	Image []byte
	Err   error
}

type captureState struct {
	result []byte
}

// CaptureAsync returns a single raw scan image. Devices whose driver
// doesn't implement CaptureDriver report NotSupported.
func (d *Device) CaptureAsync(ctx context.Context) <-chan CaptureResult {
	out := make(chan CaptureResult, 1)
	d.rx.DeferIdle(func() {
		cd, ok := d.driver.(CaptureDriver)
		if !ok {
			out <- CaptureResult{Err: NewError(ErrNotSupported, "driver does not support capture")}
			return
		}
		st := &captureState{}
		d.beginAction(ActionCapture, ctx, st, func(err error) {
			out <- CaptureResult{Image: st.result, Err: err}
		}, true, func() {
			d.dispatch(ActionCapture, func() { cd.Capture(d) })
		})
	})
	return out
}

// CaptureComplete terminates the in-flight capture action with a raw image.
func (d *Device) CaptureComplete(image []byte, err error) {
	action := d.action
	if action == nil || action.kind != ActionCapture {
		d.log.Warnf("device: CaptureComplete called outside a capture action")
		return
	}
	err = d.resultOrGeneralError(ActionCapture, image != nil, err)
	if st, ok := action.payload.(*captureState); ok && err == nil {
		st.result = image
	}
	d.completeAction(action, err)
}
