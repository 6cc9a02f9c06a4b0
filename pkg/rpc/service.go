package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
)

// ServiceName is the grpc service path every shardset node registers
// under, regardless of which methods it actually implements.
const ServiceName = "shardset.ShardRPC"

// Handler is the server-side contract for the shared RPC surface. A
// shardnode process implements Heartbeat, LockCAS and Dispatch
// (setShardVersion, planQuery); a shardrouter process implements only
// Dispatch (killCursors); either embeds UnimplementedHandler for
// the methods it doesn't serve.
type Handler interface {
	Heartbeat(ctx context.Context, req *HeartbeatWireRequest) (*HeartbeatWireResponse, error)
	LockCAS(ctx context.Context, req *LockCASRequest) (*LockCASResponse, error)
	Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error)
}

// UnimplementedHandler can be embedded in a Handler implementation to
// satisfy methods it does not serve, in the grpc-go generated-code
// idiom.
type UnimplementedHandler struct{}

func (UnimplementedHandler) Heartbeat(context.Context, *HeartbeatWireRequest) (*HeartbeatWireResponse, error) {
	return nil, errUnimplemented("Heartbeat")
}
func (UnimplementedHandler) LockCAS(context.Context, *LockCASRequest) (*LockCASResponse, error) {
	return nil, errUnimplemented("LockCAS")
}
func (UnimplementedHandler) Dispatch(context.Context, *DispatchRequest) (*DispatchResponse, error) {
	return nil, errUnimplemented("Dispatch")
}

func errUnimplemented(method string) error {
	return errors.New("rpc: method not implemented by this server: " + method)
}

func heartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatWireRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).Heartbeat(ctx, req.(*HeartbeatWireRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lockCASHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LockCASRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).LockCAS(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/LockCAS"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).LockCAS(ctx, req.(*LockCASRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DispatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Dispatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).Dispatch(ctx, req.(*DispatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a three-method unary service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
		{MethodName: "LockCAS", Handler: lockCASHandler},
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpc/service.go",
}
