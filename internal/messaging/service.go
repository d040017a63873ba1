// Package messaging holds the wire contract of the
// carenest.messaging.MessagingService gRPC API shared by server and client.
// Ping takes google.protobuf.Empty; every other request and every response
// is a google.protobuf.Struct shaped like the Go types below.
package messaging

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "carenest.messaging.MessagingService"

const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefreshToken = "/" + ServiceName + "/RefreshToken"
	MethodSendMessage  = "/" + ServiceName + "/SendMessage"
	MethodMarkRead     = "/" + ServiceName + "/MarkRead"
	MethodHistory      = "/" + ServiceName + "/History"
)

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Attachment struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

type SendMessageRequest struct {
	ConversationID string       `json:"conversationId,omitempty"`
	RecipientID    string       `json:"recipientId,omitempty"`
	JobID          string       `json:"jobId,omitempty"`
	Text           string       `json:"text,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

type AttachmentInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url,omitempty"`
}

type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	SenderID       string           `json:"senderId"`
	Text           string           `json:"text"`
	Attachments    []AttachmentInfo `json:"attachments"`
	DeliveryState  string           `json:"deliveryState"`
	Read           bool             `json:"read"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type MarkReadRequest struct {
	ConversationID string `json:"conversationId"`
}

type MarkReadResponse struct {
	MarkedCount int64     `json:"markedCount"`
	ReadAt      time.Time `json:"readAt"`
}

type HistoryRequest struct {
	ConversationID string `json:"conversationId"`
	Page           int    `json:"page,omitempty"`
	PageSize       int    `json:"pageSize,omitempty"`
	IncludeMirror  bool   `json:"includeMirror,omitempty"`
}

type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// MessagingServer is the server side of MessagingService.
type MessagingServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
}

// unary adapts one typed method to the grpc.MethodDesc handler shape. The
// interceptor chain sees the typed request; the Struct body only exists on
// the wire.
func unary[Req any, Resp any](full string, call func(MessagingServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		body := new(structpb.Struct)
		if err := dec(body); err != nil {
			return nil, err
		}
		in := new(Req)
		if err := decodeBody(body, in); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return serve(ctx, srv, full, in, interceptor, call)
	}
}

func handlePing(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	if err := dec(new(emptypb.Empty)); err != nil {
		return nil, err
	}
	return serve(ctx, srv, MethodPing, &PingRequest{}, interceptor, MessagingServer.Ping)
}

func serve[Req any, Resp any](ctx context.Context, srv any, full string, in *Req, interceptor grpc.UnaryServerInterceptor, call func(MessagingServer, context.Context, *Req) (*Resp, error)) (any, error) {
	handler := func(ctx context.Context, req any) (any, error) {
		out, err := call(srv.(MessagingServer), ctx, req.(*Req))
		if err != nil {
			return nil, err
		}
		body, err := encodeBody(out)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return body, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: handlePing},
		{MethodName: "Login", Handler: unary(MethodLogin, MessagingServer.Login)},
		{MethodName: "RefreshToken", Handler: unary(MethodRefreshToken, MessagingServer.RefreshToken)},
		{MethodName: "SendMessage", Handler: unary(MethodSendMessage, MessagingServer.SendMessage)},
		{MethodName: "MarkRead", Handler: unary(MethodMarkRead, MessagingServer.MarkRead)},
		{MethodName: "History", Handler: unary(MethodHistory, MessagingServer.History)},
	},
	Metadata: "google/protobuf/struct.proto",
}

func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls MessagingService over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	body, err := encodeBody(in)
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, body, reply, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := decodeBody(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context, _ *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodPing, &emptypb.Empty{}, reply, opts...); err != nil {
		return nil, err
	}
	out := new(PingResponse)
	if err := decodeBody(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c, MethodLogin, in, opts)
}

func (c *Client) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c, MethodRefreshToken, in, opts)
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c, MethodSendMessage, in, opts)
}

func (c *Client) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c, MethodMarkRead, in, opts)
}

func (c *Client) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c, MethodHistory, in, opts)
}
