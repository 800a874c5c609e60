package image

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprintcore/internal/device"
	"fprintcore/internal/minutiae"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
)

// fakeSensor is a scripted SensorDriver: Activate/Deactivate succeed
// immediately unless overridden.
type fakeSensor struct {
	onActivate   func(img *Device)
	onDeactivate func(img *Device)
}

func (f *fakeSensor) Activate(img *Device) {
	if f.onActivate != nil {
		f.onActivate(img)
		return
	}
	img.ActivateComplete(nil)
}

func (f *fakeSensor) Deactivate(img *Device) {
	if f.onDeactivate != nil {
		f.onDeactivate(img)
		return
	}
	img.DeactivateComplete(nil)
}

type testRig struct {
	rx   *reactor.Reactor
	base *device.Device
	img  *Device
}

// signal runs fn on the reactor goroutine and blocks until it has run,
// standing in for a sensor driver callback arriving from hardware. Every
// signal in a test goes through this, so ordering between signals matches
// the order they're issued here, same as real driver callbacks chained
// one after another on the single reactor goroutine.
func (r *testRig) signal(fn func()) {
	done := make(chan struct{})
	r.rx.DeferIdle(func() {
		fn()
		close(done)
	})
	<-done
}

func newTestRig(t *testing.T, sensor SensorDriver, nrStages int) *testRig {
	t.Helper()
	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rx.Run(ctx)

	matcher := minutiae.NewDeterministicMatcher(32)
	img := New(rx, sensor, matcher, matcher, obslog.Nop())
	base := device.New(rx, img, obslog.Nop(), device.Config{
		DriverID:       "fake-image",
		DeviceID:       "fake-image0",
		Name:           "Fake Image Sensor",
		NrEnrollStages: nrStages,
		ScanType:       device.ScanPress,
	})
	img.SetBase(base)
	return &testRig{rx: rx, base: base, img: img}
}

// S6 (image finger cycle), success path.
func TestCaptureFingerCycleSucceeds(t *testing.T) {
	r := newTestRig(t, &fakeSensor{}, 5)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	captureDone := r.base.CaptureAsync(context.Background())
	r.signal(func() { r.img.ReportFingerStatus(true) })
	r.signal(func() { r.img.ReportImageCaptured([]byte("a raw scan")) })
	r.signal(func() { r.img.ReportFingerStatus(false) })

	res := <-captureDone
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("a raw scan"), res.Image)
}

// S6, failure path: finger_off without image_captured.
func TestCaptureFingerOffWithoutImageFails(t *testing.T) {
	r := newTestRig(t, &fakeSensor{}, 5)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	captureDone := r.base.CaptureAsync(context.Background())
	r.signal(func() { r.img.ReportFingerStatus(true) })
	r.signal(func() { r.img.ReportFingerStatus(false) })

	res := <-captureDone
	require.Error(t, res.Err)
	var retryErr *device.RetryError
	require.ErrorAs(t, res.Err, &retryErr)
	assert.Equal(t, device.RetryGeneral, retryErr.Code)
}

// Property 6: enroll stage counter is non-decreasing, reaches
// nr_enroll_stages exactly once, accompanied by a non-nil print.
func TestEnrollProgressMonotonicity(t *testing.T) {
	r := newTestRig(t, &fakeSensor{}, 3)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	var stages []int
	enrollDone := r.base.EnrollAsync(context.Background(), &device.Print{}, func(p device.EnrollProgress) {
		stages = append(stages, p.Stage)
	})
	for i := 0; i < 3; i++ {
		img := byte(i)
		r.signal(func() { r.img.ReportFingerStatus(true) })
		r.signal(func() { r.img.ReportImageCaptured([]byte{img, img + 1}) })
		r.signal(func() { r.img.ReportFingerStatus(false) })
	}

	res := <-enrollDone
	require.NoError(t, res.Err)
	require.NotNil(t, res.Print)

	require.Len(t, stages, 3)
	for i := 1; i < len(stages); i++ {
		assert.GreaterOrEqual(t, stages[i], stages[i-1])
	}
	assert.Equal(t, 3, stages[len(stages)-1])
}

func TestVerifyMatchAndMismatch(t *testing.T) {
	r := newTestRig(t, &fakeSensor{}, 5)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	sample := []byte("enrolled finger data")
	verifyDone := r.base.VerifyAsync(context.Background(), &device.Print{Type: device.PrintRaw, Data: sample})
	r.signal(func() { r.img.ReportFingerStatus(true) })
	r.signal(func() { r.img.ReportImageCaptured(sample) })
	r.signal(func() { r.img.ReportFingerStatus(false) })

	res := <-verifyDone
	require.NoError(t, res.Err)
	assert.Equal(t, device.MatchSuccess, res.Match)

	other := []byte("a different finger entirely")
	verifyDone = r.base.VerifyAsync(context.Background(), &device.Print{Type: device.PrintRaw, Data: sample})
	r.signal(func() { r.img.ReportFingerStatus(true) })
	r.signal(func() { r.img.ReportImageCaptured(other) })
	r.signal(func() { r.img.ReportFingerStatus(false) })

	res = <-verifyDone
	require.NoError(t, res.Err)
	assert.Equal(t, device.MatchFail, res.Match)
}

func TestDeactivationOverlapGraceTimerFailsQueuedAction(t *testing.T) {
	sensor := &fakeSensor{}
	sensor.onDeactivate = func(img *Device) {
		// Never completes: simulate a sensor stuck deactivating.
	}
	r := newTestRig(t, sensor, 5)
	require.NoError(t, (<-r.base.OpenAsync(context.Background())).Err)

	firstCapture := r.base.CaptureAsync(context.Background())
	r.signal(func() { r.img.ReportFingerStatus(true) })
	r.signal(func() { r.img.ReportImageCaptured([]byte("first")) })
	<-firstCapture

	// img is now awaiting finger-off; reporting it starts deactivation,
	// which our fake sensor never completes.
	r.signal(func() { r.img.ReportFingerStatus(false) })

	secondCapture := r.base.CaptureAsync(context.Background())

	res := <-secondCapture
	require.Error(t, res.Err)
	var retryErr *device.RetryError
	require.ErrorAs(t, res.Err, &retryErr)
}
