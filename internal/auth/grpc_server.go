package auth

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"datasethub/internal/domain"
)

const (
	authServiceName = "datasethub.auth.v1.AuthService"
	getUserMethod   = "/" + authServiceName + "/GetUser"
)

// UserLookup возвращает пользователя по имени
type UserLookup func(ctx context.Context, username string) (*domain.User, error)

type authServiceServer interface {
	GetUser(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// GRPCServer отдает информацию о владельце токена другим сервисам.
// Токен передается в метаданных authorization, как и в HTTP.
type GRPCServer struct {
	validator Validator
	lookup    UserLookup
}

func NewGRPCServer(validator Validator, lookup UserLookup) *GRPCServer {
	return &GRPCServer{
		validator: validator,
		lookup:    lookup,
	}
}

func RegisterGRPCServer(s grpc.ServiceRegistrar, srv *GRPCServer) {
	s.RegisterService(&authServiceDesc, srv)
}

func (s *GRPCServer) GetUser(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "no authorization metadata")
	}

	token, err := parseBearer(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	username, err := s.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	user, err := s.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		log.Printf("[AuthGRPC] Failed to resolve user %s: %v", username, err)
		return nil, status.Error(codes.Internal, "failed to resolve user")
	}

	return structpb.NewStruct(map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: authServiceName,
	HandlerType: (*authServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetUser",
			Handler:    getUserHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "datasethub/auth/v1/auth.proto",
}

func getUserHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authServiceServer).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getUserMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(authServiceServer).GetUser(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
