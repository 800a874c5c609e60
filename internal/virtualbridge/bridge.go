package virtualbridge

import (
	"encoding/base64"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"fprintcore/drivers/virtual"
	"fprintcore/internal/device"
	"fprintcore/internal/obslog"
)

// sensor is the subset of drivers/virtual.Driver the bridge needs; kept
// narrow so tests can substitute a stub.
type sensor interface {
	Commands() <-chan virtual.Cmd
	ActivateAck(err error)
	DeactivateAck(err error)
	FingerStatus(on bool)
	Image(raw []byte)
	Retry(code device.RetryCode, msg string)
}

// Bridge implements VirtualBridgeServer over a single drivers/virtual
// sensor, the way teacher's HasherServer implements pb.HasherServiceServer
// over a single *device.Device: one struct, one wrapped collaborator, RPC
// handlers that translate between the wire and the collaborator's Go API.
type Bridge struct {
	drv       sensor
	log       *obslog.Logger
	startTime time.Time
}

// New builds a Bridge fronting drv.
func New(drv sensor, log *obslog.Logger) *Bridge {
	return &Bridge{drv: drv, log: log, startTime: time.Now()}
}

var (
	_ VirtualBridgeServer = (*Bridge)(nil)
	_ sensor              = (*virtual.Driver)(nil)
)

// Uptime reports how long this bridge has been serving sessions, mirroring
// HasherServer.GetDeviceInfo's UptimeSeconds field.
func (b *Bridge) Uptime() time.Duration { return time.Since(b.startTime) }

// Session relays drv's activate/deactivate requests to the controller and
// the controller's finger/image/retry/ack events into drv, until the
// stream closes. Grounded on HasherServer.StreamCompute's
// ctx.Done()-aware Recv loop.
func (b *Bridge) Session(stream VirtualBridge_SessionServer) error {
	ctx := stream.Context()
	errc := make(chan error, 2)

	go func() {
		for {
			select {
			case <-ctx.Done():
				errc <- nil
				return
			case cmd, ok := <-b.drv.Commands():
				if !ok {
					errc <- nil
					return
				}
				eventType := EventActivate
				if cmd.Kind == virtual.CmdDeactivate {
					eventType = EventDeactivate
				}
				ev, err := NewEvent(eventType, nil)
				if err != nil {
					errc <- status.Errorf(codes.Internal, "encode event: %v", err)
					return
				}
				if err := stream.Send(ev); err != nil {
					errc <- status.Errorf(codes.Internal, "send failed: %v", err)
					return
				}
			}
		}
	}()

	go func() {
		for {
			ev, err := stream.Recv()
			if err == io.EOF {
				errc <- nil
				return
			}
			if err != nil {
				errc <- status.Errorf(codes.Internal, "recv failed: %v", err)
				return
			}
			if err := b.dispatch(ev); err != nil {
				b.log.Warnf("virtualbridge: dropping malformed event %q: %v", Type(ev), err)
			}
		}
	}()

	return <-errc
}

// dispatch turns one controller-originated event into a call on the
// wrapped sensor.
func (b *Bridge) dispatch(ev *structpb.Struct) error {
	switch Type(ev) {
	case EventFingerOn:
		b.drv.FingerStatus(true)
	case EventFingerOff:
		b.drv.FingerStatus(false)
	case EventImage:
		raw, err := base64.StdEncoding.DecodeString(StringField(ev, FieldData))
		if err != nil {
			return err
		}
		b.drv.Image(raw)
	case EventRetry:
		b.drv.Retry(parseRetryCode(StringField(ev, FieldCode)), StringField(ev, FieldMessage))
	case EventAck:
		var err error
		if msg := StringField(ev, FieldMessage); msg != "" {
			err = status.Error(codes.Unknown, msg)
		}
		switch StringField(ev, FieldFor) {
		case EventActivate:
			b.drv.ActivateAck(err)
		case EventDeactivate:
			b.drv.DeactivateAck(err)
		}
	case EventError:
		b.log.Warnf("virtualbridge: controller reported error: %s", StringField(ev, FieldMessage))
	}
	return nil
}

func parseRetryCode(name string) device.RetryCode {
	switch name {
	case device.RetryTooShort.String():
		return device.RetryTooShort
	case device.RetryCenterFinger.String():
		return device.RetryCenterFinger
	case device.RetryRemoveFinger.String():
		return device.RetryRemoveFinger
	default:
		return device.RetryGeneral
	}
}
