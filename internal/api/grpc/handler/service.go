package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of the internal API. Messages are protobuf well-known
// types so resource servers need no generated stubs.
const (
	TokenVerifierIntrospectMethod         = "/oauth.v1.TokenVerifier/Introspect"
	TokenVerifierResolvePermissionsMethod = "/oauth.v1.TokenVerifier/ResolvePermissions"

	DirectoryAssignRoleMethod         = "/oauth.v1.Directory/AssignRole"
	DirectoryRevokeRoleMethod         = "/oauth.v1.Directory/RevokeRole"
	DirectorySetRolePermissionsMethod = "/oauth.v1.Directory/SetRolePermissions"
	DirectoryRevokeConsentMethod      = "/oauth.v1.Directory/RevokeConsent"
)

// TokenVerifierServer is the server API for the oauth.v1.TokenVerifier service.
type TokenVerifierServer interface {
	// Introspect takes a raw token and answers with the RFC 7662 fields.
	Introspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ResolvePermissions takes a user ID, or empty for the caller.
	ResolvePermissions(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// DirectoryServer is the server API for the oauth.v1.Directory service.
type DirectoryServer interface {
	AssignRole(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RevokeRole(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SetRolePermissions(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RevokeConsent(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// TokenVerifierServiceDesc is the grpc.ServiceDesc for oauth.v1.TokenVerifier.
var TokenVerifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "oauth.v1.TokenVerifier",
	HandlerType: (*TokenVerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Introspect",
			Handler: unary(TokenVerifierIntrospectMethod, newString, func(srv any, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.(TokenVerifierServer).Introspect(ctx, in)
			}),
		},
		{
			MethodName: "ResolvePermissions",
			Handler: unary(TokenVerifierResolvePermissionsMethod, newString, func(srv any, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.(TokenVerifierServer).ResolvePermissions(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// DirectoryServiceDesc is the grpc.ServiceDesc for oauth.v1.Directory.
var DirectoryServiceDesc = grpc.ServiceDesc{
	ServiceName: "oauth.v1.Directory",
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AssignRole",
			Handler: unary(DirectoryAssignRoleMethod, newStruct, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(DirectoryServer).AssignRole(ctx, in)
			}),
		},
		{
			MethodName: "RevokeRole",
			Handler: unary(DirectoryRevokeRoleMethod, newStruct, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(DirectoryServer).RevokeRole(ctx, in)
			}),
		},
		{
			MethodName: "SetRolePermissions",
			Handler: unary(DirectorySetRolePermissionsMethod, newStruct, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(DirectoryServer).SetRolePermissions(ctx, in)
			}),
		},
		{
			MethodName: "RevokeConsent",
			Handler: unary(DirectoryRevokeConsentMethod, newStruct, func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.(DirectoryServer).RevokeConsent(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterTokenVerifierServer registers srv on s.
func RegisterTokenVerifierServer(s grpc.ServiceRegistrar, srv TokenVerifierServer) {
	s.RegisterService(&TokenVerifierServiceDesc, srv)
}

// RegisterDirectoryServer registers srv on s.
func RegisterDirectoryServer(s grpc.ServiceRegistrar, srv DirectoryServer) {
	s.RegisterService(&DirectoryServiceDesc, srv)
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }

// unary builds a method handler that decodes the request and runs it through
// the interceptor chain.
func unary[Req proto.Message](fullMethod string, newReq func() Req, call func(srv any, ctx context.Context, in Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TokenVerifierClient calls oauth.v1.TokenVerifier.
type TokenVerifierClient struct {
	cc grpc.ClientConnInterface
}

// NewTokenVerifierClient creates a client on cc.
func NewTokenVerifierClient(cc grpc.ClientConnInterface) *TokenVerifierClient {
	return &TokenVerifierClient{cc: cc}
}

func (c *TokenVerifierClient) Introspect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TokenVerifierIntrospectMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenVerifierClient) ResolvePermissions(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TokenVerifierResolvePermissionsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
