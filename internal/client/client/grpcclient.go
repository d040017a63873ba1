// Package client talks to the carenest MessagingService over gRPC, keeping
// the session's token pair and refreshing it once when a call is rejected.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/messaging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *messaging.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = messaging.NewClient(conn)
	return c, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AuthorizationHeaderName, strings.TrimSpace(common.BearerPrefix)+" "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

// accessTokenInterceptor attaches the bearer token and, on Unauthenticated,
// rotates the refresh token once and retries.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	switch method {
	case messaging.MethodPing, messaging.MethodLogin, messaging.MethodRefreshToken:
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := s.tokens()
	if access == "" {
		return ErrNotLoggedIn
	}

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated || refresh == "" {
		return err
	}

	resp, rerr := s.client.RefreshToken(ctx, &messaging.RefreshTokenRequest{RefreshToken: refresh})
	if rerr != nil {
		s.setTokens("", "")
		return err
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.InvalidArgument, codes.PermissionDenied, codes.NotFound:
		return rejected{reason: st.Message()}
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	_, err := s.client.Ping(ctx, &messaging.PingRequest{})
	return s.mapError(err)
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {

	resp, err := s.client.Login(ctx, &messaging.LoginRequest{Email: email, Password: password})

	if err != nil {
		return s.mapError(err)
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken)

	return nil

}

func (s *GRPCClient) Logout() {
	s.setTokens("", "")
}

func (s *GRPCClient) LoggedIn() bool {
	access, _ := s.tokens()
	return access != ""
}

func (s *GRPCClient) SendMessage(ctx context.Context, req *messaging.SendMessageRequest) (*messaging.Message, error) {
	resp, err := s.client.SendMessage(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Message, nil
}

func (s *GRPCClient) History(ctx context.Context, conversationID string, page, pageSize int) ([]messaging.Message, error) {
	resp, err := s.client.History(ctx, &messaging.HistoryRequest{
		ConversationID: conversationID,
		Page:           page,
		PageSize:       pageSize,
		IncludeMirror:  page <= 1,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Messages, nil
}

func (s *GRPCClient) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	resp, err := s.client.MarkRead(ctx, &messaging.MarkReadRequest{ConversationID: conversationID})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.MarkedCount, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}
