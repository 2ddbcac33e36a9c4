// Package api declares the gymflow.v1.Backend gRPC service.
//
// The service has no generated stubs: every request and response is a
// google.protobuf.Struct whose fields are encoded by package convert.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gymflow.v1.Backend"

// Full method names.
const (
	MethodRegister         = "/" + ServiceName + "/Register"
	MethodLogin            = "/" + ServiceName + "/Login"
	MethodRefreshSession   = "/" + ServiceName + "/RefreshSession"
	MethodGetProfile       = "/" + ServiceName + "/GetProfile"
	MethodGetAuthMetadata  = "/" + ServiceName + "/GetAuthMetadata"
	MethodGetGlobalSetting = "/" + ServiceName + "/GetGlobalSetting"
	MethodUpdateProfile    = "/" + ServiceName + "/UpdateProfile"
	MethodSetPassword      = "/" + ServiceName + "/SetPassword"
)

// BackendServer is implemented by the gRPC handlers.
type BackendServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAuthMetadata(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGlobalSetting(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PublicMethods can be called without a bearer token.
var PublicMethods = map[string]bool{
	MethodRegister: true,
	MethodLogin:    true,
}

type call func(BackendServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn call) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(BackendServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(BackendServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Backend service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", BackendServer.Register),
		unary("Login", BackendServer.Login),
		unary("RefreshSession", BackendServer.RefreshSession),
		unary("GetProfile", BackendServer.GetProfile),
		unary("GetAuthMetadata", BackendServer.GetAuthMetadata),
		unary("GetGlobalSetting", BackendServer.GetGlobalSetting),
		unary("UpdateProfile", BackendServer.UpdateProfile),
		unary("SetPassword", BackendServer.SetPassword),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterBackendServer registers srv on s.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Invoke performs a unary call of method on cc.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
