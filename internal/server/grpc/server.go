package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/messaging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/metrics"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"google.golang.org/grpc"
)

type Authenticator interface {
	Resolve(ctx context.Context, token string) (*auth.Session, error)
}

type Accounts interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type Messages interface {
	Send(ctx context.Context, senderID string, req services.SendRequest) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, time.Time, error)
	History(ctx context.Context, req services.HistoryRequest) ([]*models.Message, error)
}

type GRPCServer struct {
	address  string
	resolver Authenticator
	accounts Accounts
	messages Messages
	metrics  *metrics.Metrics
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, resolver Authenticator, accounts Accounts, messages Messages, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		resolver: resolver,
		accounts: accounts,
		messages: messages,
		metrics:  m,
	}
}

// NewServer builds a grpc.Server with the auth interceptor and the
// messaging service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.authInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	messaging.RegisterMessagingServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
