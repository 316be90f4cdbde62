// Package verifysvc exposes the verifier over gRPC.
//
// Messages are protobuf well-known types (structpb, wrapperspb), so no protoc
// step is needed. Proto definition: signet/verify/v1/verifier.proto.
package verifysvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "signet.verify.v1.Verifier"

const (
	methodComputeCID    = "/" + ServiceName + "/ComputeCID"
	methodVerifyBundle  = "/" + ServiceName + "/VerifyBundle"
	methodValidateChain = "/" + ServiceName + "/ValidateChain"
)

// VerifierServer is the server API for the Verifier service.
type VerifierServer interface {
	ComputeCID(context.Context, *structpb.Value) (*wrapperspb.StringValue, error)
	VerifyBundle(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	ValidateChain(context.Context, *structpb.ListValue) (*structpb.Struct, error)
}

// UnimplementedVerifierServer can be embedded to have forward compatible implementations.
type UnimplementedVerifierServer struct{}

func (UnimplementedVerifierServer) ComputeCID(context.Context, *structpb.Value) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ComputeCID not implemented")
}
func (UnimplementedVerifierServer) VerifyBundle(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyBundle not implemented")
}
func (UnimplementedVerifierServer) ValidateChain(context.Context, *structpb.ListValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ValidateChain not implemented")
}

func RegisterVerifierServer(s grpc.ServiceRegistrar, srv VerifierServer) {
	s.RegisterService(&Verifier_ServiceDesc, srv)
}

// VerifierClient is the client API for the Verifier service.
type VerifierClient interface {
	ComputeCID(ctx context.Context, in *structpb.Value, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	VerifyBundle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	ValidateChain(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type verifierClient struct{ cc grpc.ClientConnInterface }

func NewVerifierClient(cc grpc.ClientConnInterface) VerifierClient {
	return &verifierClient{cc: cc}
}

func (c *verifierClient) ComputeCID(ctx context.Context, in *structpb.Value, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodComputeCID, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *verifierClient) VerifyBundle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodVerifyBundle, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *verifierClient) ValidateChain(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodValidateChain, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler[Req any, Resp any](fullMethod string, call func(VerifierServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VerifierServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VerifierServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Verifier_ServiceDesc is the grpc.ServiceDesc for Verifier service.
var Verifier_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeCID", Handler: unaryHandler(methodComputeCID, VerifierServer.ComputeCID)},
		{MethodName: "VerifyBundle", Handler: unaryHandler(methodVerifyBundle, VerifierServer.VerifyBundle)},
		{MethodName: "ValidateChain", Handler: unaryHandler(methodValidateChain, VerifierServer.ValidateChain)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "signet/verify/v1/verifier.proto",
}
