package virtualbridge

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"fprintcore/drivers/virtual"
	"fprintcore/internal/device"
	"fprintcore/internal/obslog"
)

// fakeSensor is a scripted stand-in for drivers/virtual.Driver.
type fakeSensor struct {
	out           chan virtual.Cmd
	activateAcks  chan error
	deactivateErr chan error
	fingerOn      chan bool
	images        chan []byte
	retries       chan device.RetryError
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		out:           make(chan virtual.Cmd, 4),
		activateAcks:  make(chan error, 4),
		deactivateErr: make(chan error, 4),
		fingerOn:      make(chan bool, 4),
		images:        make(chan []byte, 4),
		retries:       make(chan device.RetryError, 4),
	}
}

func (f *fakeSensor) Commands() <-chan virtual.Cmd { return f.out }
func (f *fakeSensor) ActivateAck(err error)         { f.activateAcks <- err }
func (f *fakeSensor) DeactivateAck(err error)       { f.deactivateErr <- err }
func (f *fakeSensor) FingerStatus(on bool)          { f.fingerOn <- on }
func (f *fakeSensor) Image(raw []byte)              { f.images <- raw }
func (f *fakeSensor) Retry(code device.RetryCode, msg string) {
	f.retries <- device.RetryError{Code: code, Msg: msg}
}

func dial(t *testing.T, srv VirtualBridgeServer) (VirtualBridge_SessionClient, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, srv)
	go gs.Serve(lis)

	cc, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewSessionClient(ctx, cc)
	require.NoError(t, err)

	return stream, func() {
		cancel()
		cc.Close()
		gs.Stop()
	}
}

func TestBridgeRelaysActivateCommandToController(t *testing.T) {
	sensor := newFakeSensor()
	b := New(sensor, obslog.Nop())
	stream, cleanup := dial(t, b)
	defer cleanup()

	sensor.out <- virtual.Cmd{Kind: virtual.CmdActivate}

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventActivate, Type(ev))
}

func TestBridgeDispatchesControllerEventsToSensor(t *testing.T) {
	sensor := newFakeSensor()
	b := New(sensor, obslog.Nop())
	stream, cleanup := dial(t, b)
	defer cleanup()

	onEv, err := NewEvent(EventFingerOn, nil)
	require.NoError(t, err)
	require.NoError(t, stream.Send(onEv))

	select {
	case on := <-sensor.fingerOn:
		assert.True(t, on)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finger_on dispatch")
	}

	imgEv, err := NewEvent(EventImage, map[string]any{
		FieldData: base64.StdEncoding.EncodeToString([]byte("scan bytes")),
	})
	require.NoError(t, err)
	require.NoError(t, stream.Send(imgEv))

	select {
	case raw := <-sensor.images:
		assert.Equal(t, []byte("scan bytes"), raw)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for image dispatch")
	}

	ackEv, err := NewEvent(EventAck, map[string]any{FieldFor: EventActivate})
	require.NoError(t, err)
	require.NoError(t, stream.Send(ackEv))

	select {
	case err := <-sensor.activateAcks:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activate ack dispatch")
	}
}
