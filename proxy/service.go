// Package proxy is the gRPC front end of the proxy. It serves
// apache.rocketmq.v2.MessagingService and the standard gRPC health service.
//
// The service is registered from a hand-written ServiceDesc. Request and response
// bodies are carried as emptypb.Empty: any protobuf message decodes into it with
// its fields kept as unknown fields, which is all the current handlers need.
package proxy

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const ServiceName = "apache.rocketmq.v2.MessagingService"

// UnaryMethods lists the unary methods of MessagingService.
var UnaryMethods = []string{
	"QueryRoute",
	"Heartbeat",
	"SendMessage",
	"QueryAssignment",
	"ForwardMessageToDeadLetterQueue",
	"EndTransaction",
	"NotifyClientTermination",
	"ChangeInvisibleDuration",
	"AckMessage",
	"UpdateOffset",
	"GetOffset",
	"QueryOffset",
}

// StreamMethods lists the streaming methods of MessagingService.
var StreamMethods = []grpc.StreamDesc{
	{StreamName: "ReceiveMessage", ServerStreams: true},
	{StreamName: "PullMessage", ServerStreams: true},
	{StreamName: "Telemetry", ServerStreams: true, ClientStreams: true},
}

// MessagingServer handles every MessagingService call. method is the bare method name.
type MessagingServer interface {
	Unary(ctx context.Context, method string, req *emptypb.Empty) (*emptypb.Empty, error)
	Stream(method string, stream grpc.ServerStream) error
}

// FullMethod returns the gRPC path of a MessagingService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes MessagingService for grpc.Server.RegisterService.
func ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*MessagingServer)(nil),
		Metadata:    "apache/rocketmq/v2/service.proto",
	}
	for _, m := range UnaryMethods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: m, Handler: unaryHandler(m)})
	}
	for _, s := range StreamMethods {
		s.Handler = streamHandler(s.StreamName)
		desc.Streams = append(desc.Streams, s)
	}
	return desc
}

func unaryHandler(method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(MessagingServer)
		if interceptor == nil {
			return h.Unary(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h.Unary(ctx, method, req.(*emptypb.Empty))
		})
	}
}

func streamHandler(method string) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		return srv.(MessagingServer).Stream(method, stream)
	}
}

// Unimplemented answers every call with codes.Aborted "not implemented".
type Unimplemented struct {
	Logger *zap.Logger
}

var _ MessagingServer = Unimplemented{}

func (u Unimplemented) Unary(ctx context.Context, method string, req *emptypb.Empty) (*emptypb.Empty, error) {
	u.log(method)
	return nil, status.Error(codes.Aborted, "not implemented")
}

func (u Unimplemented) Stream(method string, stream grpc.ServerStream) error {
	u.log(method)
	return status.Error(codes.Aborted, "not implemented")
}

func (u Unimplemented) log(method string) {
	if u.Logger != nil {
		u.Logger.Debug("call to unimplemented method", zap.String("method", method))
	}
}
