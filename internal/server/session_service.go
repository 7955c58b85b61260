// ABOUTME: Authenticated gRPC session service reporting the caller's principal
// ABOUTME: Served behind the auth interceptors so internal clients can check a token over gRPC

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/warden/internal/auth"
)

// WhoamiMethod is the full gRPC method name of SessionService.Whoami.
const WhoamiMethod = "/warden.v1.SessionService/Whoami"

// sessionServiceServer is the handler type for sessionServiceDesc.
type sessionServiceServer interface {
	Whoami(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// sessionServiceDesc describes warden.v1.SessionService using well-known
// message types, so no generated code is needed.
var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: "warden.v1.SessionService",
	HandlerType: (*sessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Whoami", Handler: whoamiHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "warden/v1/session.proto",
}

func whoamiHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionServiceServer).Whoami(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoamiMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(sessionServiceServer).Whoami(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// sessionService answers Whoami from the principal the interceptor attached.
type sessionService struct{}

func (sessionService) Whoami(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p := auth.FromContext(ctx)
	if p == nil {
		return nil, status.Error(codes.Unauthenticated, string(auth.ReasonNoToken))
	}

	teams := make([]any, len(p.Teams))
	for i, t := range p.Teams {
		teams[i] = t
	}
	out, err := structpb.NewStruct(map[string]any{
		"user_id":    p.UserID,
		"username":   p.Username,
		"role":       string(p.Role),
		"teams":      teams,
		"session_id": p.SessionID,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encoding principal")
	}
	return out, nil
}
