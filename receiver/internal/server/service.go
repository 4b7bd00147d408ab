package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// PushSamplesMethod - полное имя потокового метода приема сэмплов.
// Сообщения в обе стороны - google.protobuf.Struct:
// входящие {case_id, t, bpm, uc}, подтверждения {case_id, received}.
const PushSamplesMethod = "/ctg.v1.IngestService/PushSamples"

// IngestServer - серверная сторона ctg.v1.IngestService
type IngestServer interface {
	PushSamples(PushSamplesServerStream) error
}

// PushSamplesServerStream - серверный конец двунаправленного потока
type PushSamplesServerStream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type pushSamplesServerStream struct {
	grpc.ServerStream
}

func (x *pushSamplesServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *pushSamplesServerStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func pushSamplesHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IngestServer).PushSamples(&pushSamplesServerStream{stream})
}

// IngestServiceDesc описывает сервис для grpc.Server
var IngestServiceDesc = grpc.ServiceDesc{
	ServiceName: "ctg.v1.IngestService",
	HandlerType: (*IngestServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PushSamples",
			Handler:       pushSamplesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "ctg/v1/ingest.proto",
}

// RegisterIngestServer регистрирует реализацию на сервере
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&IngestServiceDesc, srv)
}

// PushSamplesClientStream - клиентский конец потока
type PushSamplesClientStream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type pushSamplesClientStream struct {
	grpc.ClientStream
}

func (x *pushSamplesClientStream) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

func (x *pushSamplesClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenPushSamples открывает поток отправки сэмплов
func OpenPushSamples(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (PushSamplesClientStream, error) {
	stream, err := cc.NewStream(ctx, &IngestServiceDesc.Streams[0], PushSamplesMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &pushSamplesClientStream{stream}, nil
}
