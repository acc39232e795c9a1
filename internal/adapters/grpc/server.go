package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ventas-png/control-consumo-agua/internal/application"
	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

// AuthAccessService is the internal surface other platform services call to
// validate sessions and authorize capability use without sharing the signing
// key or the session store.
type AuthAccessService interface {
	ValidateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type AuthAccessServer struct {
	service *application.Service
}

func NewAuthAccessServer(service *application.Service) *AuthAccessServer {
	return &AuthAccessServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AuthAccessService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "controlagua.auth.v1.AuthAccessService",
		HandlerType: (*AuthAccessService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateSession",
				Handler:    validateSessionHandler(svc),
			},
			{
				MethodName: "Authorize",
				Handler:    authorizeHandler(svc),
			},
			{
				MethodName: "GetPublicKeys",
				Handler:    getPublicKeysHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proto/auth/v1/auth_access.proto",
	}, svc)
}

func (s *AuthAccessServer) ValidateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	res, err := s.service.SessionStatus(ctx, token)
	if err != nil {
		return nil, statusFromError(err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":                    true,
		"session_id":               res.SessionID.String(),
		"user_id":                  res.UserID.String(),
		"email":                    res.Email,
		"role":                     res.Role,
		"issued_at":                res.IssuedAt.Unix(),
		"expires_at":               res.ExpiresAt.Unix(),
		"revalidate_after_seconds": res.RevalidateAfterSeconds,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AuthAccessServer) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}
	capability := stringField(req, "capability")
	if capability == "" {
		return nil, status.Error(codes.InvalidArgument, "missing capability")
	}

	claims, err := s.service.Authorize(ctx, token, domain.Capability(capability))
	if err != nil {
		return nil, statusFromError(err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"allowed":    true,
		"user_id":    claims.UserID.String(),
		"email":      claims.Email,
		"role":       claims.Role,
		"capability": capability,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AuthAccessServer) GetPublicKeys(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	keys, err := s.service.PublicJWKs()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get keys: %v", err)
	}
	// structpb only accepts []any, not []map[string]any.
	keyValues := make([]any, 0, len(keys))
	for _, key := range keys {
		keyValues = append(keyValues, key)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"keys": keyValues,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	val := req.GetFields()[name]
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

// statusFromError keeps the expired and invalid outcomes distinguishable for
// internal callers; both still deny.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return status.Error(codes.Unauthenticated, "session expired")
	case errors.Is(err, domain.ErrSessionInvalid):
		return status.Error(codes.Unauthenticated, "session invalid")
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return status.Error(codes.PermissionDenied, "operation not permitted for role")
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func validateSessionHandler(svc AuthAccessService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.ValidateSession(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/controlagua.auth.v1.AuthAccessService/ValidateSession",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.ValidateSession(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func authorizeHandler(svc AuthAccessService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.Authorize(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/controlagua.auth.v1.AuthAccessService/Authorize",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.Authorize(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getPublicKeysHandler(svc AuthAccessService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetPublicKeys(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/controlagua.auth.v1.AuthAccessService/GetPublicKeys",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetPublicKeys(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
