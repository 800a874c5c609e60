package virtual

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprintcore/internal/device"
	"fprintcore/internal/image"
	"fprintcore/internal/minutiae"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

type testRig struct {
	rx   *reactor.Reactor
	base *device.Device
	img  *image.Device
	drv  *Driver
}

func (r *testRig) signal(fn func()) {
	done := make(chan struct{})
	r.rx.DeferIdle(func() {
		fn()
		close(done)
	})
	<-done
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rx.Run(ctx)

	drv := New(obslog.Nop())
	matcher := minutiae.NewDeterministicMatcher(32)
	img := image.New(rx, drv, matcher, matcher, obslog.Nop())
	drv.SetImageDevice(img)
	base := device.New(rx, img, obslog.Nop(), device.Config{
		DriverID:       "virtual",
		DeviceID:       "virtual0",
		Name:           "Virtual Sensor",
		NrEnrollStages: 3,
		ScanType:       device.ScanPress,
	})
	img.SetBase(base)
	return &testRig{rx: rx, base: base, img: img, drv: drv}
}

// Activate/Deactivate requests are relayed out over Commands rather than
// completing synchronously, since nothing in this package does the I/O.
// Open completes at once; the activate command goes out when an action
// starts, and the action cannot finish until it has been acked.
func TestCaptureEmitsActivateCommandAndWaitsForAck(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	captureDone := r.base.CaptureAsync(context.Background())
	cmd := <-r.drv.Commands()
	assert.Equal(t, CmdActivate, cmd.Kind)

	select {
	case <-captureDone:
		t.Fatal("capture should not complete before ActivateAck")
	default:
	}

	r.signal(func() { r.drv.ActivateAck(nil) })
	r.signal(func() { r.drv.FingerStatus(true) })
	r.signal(func() { r.drv.Image([]byte("a raw virtual scan")) })
	res := <-captureDone
	require.NoError(t, res.Err)
}

// autoAck acks every activate/deactivate command as it arrives, standing
// in for internal/virtualbridge relaying a controller's immediate ack.
func autoAck(t *testing.T, r *testRig) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case cmd, ok := <-r.drv.Commands():
				if !ok {
					return
				}
				r.signal(func() {
					if cmd.Kind == CmdActivate {
						r.drv.ActivateAck(nil)
					} else {
						r.drv.DeactivateAck(nil)
					}
				})
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// A full capture cycle driven purely by injected stimuli, mirroring how
// internal/virtualbridge would forward controller events.
func TestInjectedFingerCycleProducesCapture(t *testing.T) {
	r := newTestRig(t)

	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	captureDone := r.base.CaptureAsync(context.Background())
	// Stimuli are ignored while the sensor is still activating, so the
	// activate ack must land before the finger cycle is injected.
	require.Equal(t, CmdActivate, (<-r.drv.Commands()).Kind)
	r.signal(func() { r.drv.ActivateAck(nil) })
	defer autoAck(t, r)()

	r.signal(func() { r.drv.FingerStatus(true) })
	r.signal(func() { r.drv.Image([]byte("a raw virtual scan")) })
	r.signal(func() { r.drv.FingerStatus(false) })

	res := <-captureDone
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("a raw virtual scan"), res.Image)
}
