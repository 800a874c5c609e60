// Package virtualbridge exposes drivers/virtual over gRPC so an external
// test controller can drive a simulated sensor's finger-on/off and image
// events the way original_source/libfprint/drivers/virtual-device.c and
// its companion virtual-device-listener.c let the upstream Python test
// suite drive a virtual device over a Unix socket. There is no .proto file
// here: every message on the wire is the pre-generated
// google.golang.org/protobuf/types/known/structpb.Struct well-known type,
// so there's nothing for protoc to generate — the grpc.ServiceDesc below
// is written by hand the way a generated _grpc.pb.go would shape one,
// grounded on teacher's internal/driver/device/server.go (HasherServer's
// RPC handlers, context-cancellation-aware stream loop, and
// codes/status error convention).
package virtualbridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event type tags carried in a Struct's "type" field, mirroring the line
// vocabulary virtual-device-listener.c reads off its control socket
// (SCAN, FINGER_ON/OFF, ERROR) but generalized to a bidirectional stream.
const (
	EventActivate   = "activate"   // driver -> controller: sensor asked to power up
	EventDeactivate = "deactivate" // driver -> controller: sensor asked to power down
	EventAck        = "ack"        // controller -> driver: activate/deactivate result
	EventFingerOn   = "finger_on"  // controller -> driver
	EventFingerOff  = "finger_off" // controller -> driver
	EventImage      = "image"      // controller -> driver, field "data" (base64)
	EventRetry      = "retry"      // controller -> driver, field "code"/"message"
	EventError      = "error"      // either direction, field "message"
)

// Field names used within a Struct's payload.
const (
	FieldType    = "type"
	FieldFor     = "for"     // EventAck: "activate" | "deactivate"
	FieldData    = "data"    // EventImage: base64-encoded raw scan bytes
	FieldCode    = "code"    // EventRetry: device.RetryCode name
	FieldMessage = "message" // EventRetry / EventError / EventAck(error)
)

// NewEvent builds a Struct carrying eventType plus the given fields.
func NewEvent(eventType string, fields map[string]any) (*structpb.Struct, error) {
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m[FieldType] = eventType
	return structpb.NewStruct(m)
}

// Type reads the "type" tag out of an event Struct.
func Type(s *structpb.Struct) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[FieldType].GetStringValue()
}

// StringField reads a string-valued field, returning "" if absent or of
// the wrong kind.
func StringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

// VirtualBridgeServer is the service drivers/virtual's gRPC front end
// implements.
type VirtualBridgeServer interface {
	// Session is a single simulated sensor's lifetime: the driver emits
	// activate/deactivate/error events, the controller emits
	// ack/finger_on/finger_off/image/retry events, both over the same
	// stream.
	Session(VirtualBridge_SessionServer) error
}

// VirtualBridge_SessionServer is the server side of the Session stream,
// typed the way protoc-gen-go-grpc would type it.
type VirtualBridge_SessionServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type virtualBridgeSessionServer struct {
	grpc.ServerStream
}

func (x *virtualBridgeSessionServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *virtualBridgeSessionServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _VirtualBridge_Session_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(VirtualBridgeServer).Session(&virtualBridgeSessionServer{stream})
}

// ServiceDesc is registered with grpc.Server.RegisterService in place of a
// protoc-generated one.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "fprintcore.virtualbridge.VirtualBridge",
	HandlerType: (*VirtualBridgeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       _VirtualBridge_Session_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "virtualbridge",
}

// VirtualBridge_SessionClient is the client side of the Session stream.
type VirtualBridge_SessionClient interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type virtualBridgeSessionClient struct {
	grpc.ClientStream
}

func (x *virtualBridgeSessionClient) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

func (x *virtualBridgeSessionClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewSessionClient opens the Session stream against cc, for a test
// controller driving a remote drivers/virtual sensor.
func NewSessionClient(ctx context.Context, cc grpc.ClientConnInterface) (VirtualBridge_SessionClient, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], "/fprintcore.virtualbridge.VirtualBridge/Session")
	if err != nil {
		return nil, err
	}
	return &virtualBridgeSessionClient{stream}, nil
}
