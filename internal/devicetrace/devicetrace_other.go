//go:build !linux

package devicetrace

import "fmt"

// LatencyEvent mirrors the Linux build's type so callers can reference it
// unconditionally.
type LatencyEvent struct {
	EndpointAddr uint8
	DurationNs   uint64
}

// Tracer is a no-op stand-in on platforms without eBPF/XDP support.
type Tracer struct{}

// Attach always fails outside Linux.
func Attach(ifaceName string) (*Tracer, error) {
	return nil, fmt.Errorf("devicetrace: not supported on this platform")
}

func (t *Tracer) Close() error                    { return nil }
func (t *Tracer) Next() (LatencyEvent, error)      { return LatencyEvent{}, fmt.Errorf("devicetrace: not supported on this platform") }
