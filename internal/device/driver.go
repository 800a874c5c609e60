package device

// ScanType is the sensor's capture modality (spec §3).
type ScanType int

const (
	ScanSwipe ScanType = iota
	ScanPress
)

// Features is a bitset of optional device capabilities (spec §3).
type Features uint8

const (
	FeatureIdentify Features = 1 << iota
	FeatureCapture
	FeatureStorage
	FeatureDuplicatesCheck
)

func (f Features) Has(bit Features) bool { return f&bit != 0 }

// Driver is the capability set a sensor driver implements. Open, Close,
// Enroll and Verify are required; everything else is optional and probed
// for with a type assertion, exactly as spec §4.1 step 3 describes ("If no
// vfunc exists and the action is delete, complete with success
// immediately... if identify/capture/list have no vfunc, report
// NotSupported").
type Driver interface {
	Open(d *Device)
	Close(d *Device)
	Enroll(d *Device)
	Verify(d *Device)
}

// ProbeDriver is implemented by drivers that support device probing.
type ProbeDriver interface {
	Probe(d *Device)
}

// IdentifyDriver is implemented by drivers that support identify.
type IdentifyDriver interface {
	Identify(d *Device)
}

// CaptureDriver is implemented by drivers that support raw capture.
type CaptureDriver interface {
	Capture(d *Device)
}

// DeleteDriver is implemented by drivers with on-device storage that
// support deleting a single print.
type DeleteDriver interface {
	Delete(d *Device)
}

// ListDriver is implemented by drivers with on-device storage that support
// listing stored prints.
type ListDriver interface {
	List(d *Device)
}

// ClearStorageDriver is implemented by drivers with on-device storage that
// support wiping it.
type ClearStorageDriver interface {
	ClearStorage(d *Device)
}

// CancelDriver is implemented by drivers that can react to cancellation
// mid-action (spec §4.1 "Cancellation semantics"). Drivers without it only
// see the cancellation through ActionIsCancelled polling.
type CancelDriver interface {
	Cancel(d *Device)
}
