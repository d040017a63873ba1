package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/messaging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC codes. Internal details never
// reach the caller.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case common.IsAuthentication(err):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case common.IsAuthorization(err):
		return status.Error(codes.PermissionDenied, rootMessage(err))
	case common.IsValidation(err):
		return status.Error(codes.InvalidArgument, rootMessage(err))
	case common.IsNotFound(err):
		return status.Error(codes.NotFound, rootMessage(err))
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func toWire(m *models.Message) messaging.Message {
	p := services.NewMessagePayload(m)
	atts := make([]messaging.AttachmentInfo, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		atts = append(atts, messaging.AttachmentInfo(a))
	}
	return messaging.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Text:           p.Text,
		Attachments:    atts,
		DeliveryState:  p.DeliveryState,
		Read:           p.Read,
		ReadAt:         p.ReadAt,
		CreatedAt:      p.CreatedAt,
	}
}

func sessionUserID(ctx context.Context) (string, error) {
	sess, ok := auth.FromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthorized")
	}
	return sess.UserID, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *messaging.PingRequest) (*messaging.PingResponse, error) {

	return &messaging.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) Login(ctx context.Context, req *messaging.LoginRequest) (*messaging.TokenResponse, error) {

	tokens, err := s.accounts.Login(ctx, req.Email, req.Password)

	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &messaging.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *messaging.RefreshTokenRequest) (*messaging.TokenResponse, error) {

	tokens, err := s.accounts.RefreshToken(ctx, req.RefreshToken)

	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &messaging.TokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) SendMessage(ctx context.Context, req *messaging.SendMessageRequest) (*messaging.SendMessageResponse, error) {

	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}

	uploads := make([]services.AttachmentUpload, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		uploads = append(uploads, services.AttachmentUpload{Data: a.Data, MimeType: a.MimeType, Name: a.Name})
	}

	msg, err := s.messages.Send(ctx, userID, services.SendRequest{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		JobID:          req.JobID,
		Text:           req.Text,
		Attachments:    uploads,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &messaging.SendMessageResponse{Message: toWire(msg)}, nil

}

func (s *GRPCServer) MarkRead(ctx context.Context, req *messaging.MarkReadRequest) (*messaging.MarkReadResponse, error) {

	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}

	n, at, err := s.messages.MarkRead(ctx, req.ConversationID, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &messaging.MarkReadResponse{MarkedCount: n, ReadAt: at}, nil

}

func (s *GRPCServer) History(ctx context.Context, req *messaging.HistoryRequest) (*messaging.HistoryResponse, error) {

	userID, err := sessionUserID(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.History(ctx, services.HistoryRequest{
		ConversationID: req.ConversationID,
		RequesterID:    userID,
		Page:           req.Page,
		PageSize:       req.PageSize,
		IncludeMirror:  req.IncludeMirror,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := make([]messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toWire(m))
	}
	return &messaging.HistoryResponse{Messages: out}, nil

}
