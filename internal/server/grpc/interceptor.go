package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/messaging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var publicMethods = map[string]struct{}{
	messaging.MethodPing:         {},
	messaging.MethodLogin:        {},
	messaging.MethodRefreshToken: {},
}

// tokenFromMetadata prefers "authorization: Bearer <token>" and falls back
// to a raw access_token entry.
func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", common.ErrTokenMissing
	}
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		return auth.BearerToken(values[0])
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		return strings.TrimSpace(values[0]), nil
	}
	return "", common.ErrTokenMissing
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	token, err := tokenFromMetadata(ctx)
	if err == nil {
		var sess *auth.Session
		if sess, err = s.resolver.Resolve(ctx, token); err == nil {
			return handler(auth.WithSession(ctx, sess), req)
		}
	}

	if !common.IsAuthentication(err) {
		s.logger.Error(ctx, "authentication backend failed", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	s.metrics.AuthFailed("grpc")
	s.logger.Debug(ctx, "authentication failed", "method", info.FullMethod, "error", err)
	return nil, status.Error(codes.Unauthenticated, "unauthorized")
}
