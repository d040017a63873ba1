package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	sessions map[string]*auth.Session
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (*auth.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, common.ErrTokenInvalidSignature
	}
	return s, nil
}

type fakeMessages struct {
	sendReq    services.SendRequest
	sendSender string
	sendErr    error

	historyReq services.HistoryRequest
	history    []*models.Message
	historyErr error

	readCount int64
	readAt    time.Time
	readErr   error

	deleteErr error
	deleted   string

	convs []*models.Conversation
}

func (f *fakeMessages) Send(_ context.Context, senderID string, req services.SendRequest) (*models.Message, error) {
	f.sendSender, f.sendReq = senderID, req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       senderID,
		Text:           req.Text,
		DeliveryState:  models.DeliverySent,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakeMessages) MarkRead(context.Context, string, string) (int64, time.Time, error) {
	return f.readCount, f.readAt, f.readErr
}

func (f *fakeMessages) History(_ context.Context, req services.HistoryRequest) ([]*models.Message, error) {
	f.historyReq = req
	return f.history, f.historyErr
}

func (f *fakeMessages) Delete(_ context.Context, messageID, _ string) error {
	f.deleted = messageID
	return f.deleteErr
}

func (f *fakeMessages) Conversations(context.Context, string) ([]*models.Conversation, error) {
	return f.convs, nil
}

type fakeAccounts struct {
	registered services.RegisterRequest
	regErr     error
	loginErr   error
	refreshErr error
}

func (f *fakeAccounts) Register(_ context.Context, req services.RegisterRequest) (*models.User, error) {
	f.registered = req
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &models.User{ID: "u9", Email: req.Email, Role: models.RoleParent}, nil
}

func (f *fakeAccounts) Login(context.Context, string, string) (*services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAccounts) RefreshToken(context.Context, string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

type fixture struct {
	resolver *fakeResolver
	messages *fakeMessages
	accounts *fakeAccounts
	handler  http.Handler
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		resolver: &fakeResolver{sessions: map[string]*auth.Session{
			"good": {UserID: "u1", Role: models.RoleParent, Email: "p@example.com", Kind: auth.KindLocal},
		}},
		messages: &fakeMessages{},
		accounts: &fakeAccounts{},
	}
	d := Deps{Resolver: f.resolver, Messages: f.messages, Accounts: f.accounts}
	for _, m := range mutate {
		m(&d)
	}
	f.handler = NewHandler(d)
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b.Error
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, errorDetail{Code: "unauthorized", Message: "unauthorized"}, decodeError(t, w))
			}
		})
	}
}

func TestAuthenticate_BackendFailureIs500(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("db down")

	w := f.do(http.MethodGet, "/api/v1/me", "good", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decodeError(t, w).Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/v1/me", "good", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got meResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "parent", got.Role)
	assert.Equal(t, "local", got.TokenKind)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	body := `{"recipientId":"u2","text":"hello","attachments":[{"data":"aGk=","mimeType":"text/plain","name":"a.txt"}]}`

	w := f.do(http.MethodPost, "/api/v1/messages", "good", body)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, "u1", f.messages.sendSender)
	assert.Equal(t, "u2", f.messages.sendReq.RecipientID)
	require.Len(t, f.messages.sendReq.Attachments, 1)
	assert.Equal(t, "a.txt", f.messages.sendReq.Attachments[0].Name)

	var got services.MessagePayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "hello", got.Text)
}

func TestSendMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody errorDetail
	}{
		{"empty", common.ErrEmptyMessage, http.StatusBadRequest,
			errorDetail{Code: "validation_failed", Message: common.ErrEmptyMessage.Error()}},
		{"denied", fmt.Errorf("send: %w", common.ErrAccessDenied), http.StatusForbidden,
			errorDetail{Code: "forbidden", Message: common.ErrAccessDenied.Error()}},
		{"missing conversation", common.ErrConversationNotFound, http.StatusNotFound,
			errorDetail{Code: "not_found", Message: common.ErrConversationNotFound.Error()}},
		{"internal", errors.New("boom"), http.StatusInternalServerError,
			errorDetail{Code: "internal", Message: "internal error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.messages.sendErr = tt.err
			w := f.do(http.MethodPost, "/api/v1/messages", "good", `{"text":"x","recipientId":"u2"}`)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, decodeError(t, w))
		})
	}
}

func TestSendMessage_BadJSON(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/messages", "good", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeError(t, w).Code)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	f.messages.readCount, f.messages.readAt = 3, at

	w := f.do(http.MethodPost, "/api/v1/conversations/c1/read", "good", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got readResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.MarkedCount)
	assert.True(t, at.Equal(got.ReadAt))
}

func TestHistory_PassesQuery(t *testing.T) {
	f := newFixture(t)
	f.messages.history = []*models.Message{{ID: "m1", ConversationID: "c1", Text: "hi"}}

	w := f.do(http.MethodGet, "/api/v1/conversations/c1/messages?page=2&pageSize=10&mirror=1", "good", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, services.HistoryRequest{
		ConversationID: "c1", RequesterID: "u1", Page: 2, PageSize: 10, IncludeMirror: true,
	}, f.messages.historyReq)

	var got []services.MessagePayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestHistory_Denied(t *testing.T) {
	f := newFixture(t)
	f.messages.historyErr = common.ErrAccessDenied
	w := f.do(http.MethodGet, "/api/v1/conversations/c1/messages", "good", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodDelete, "/api/v1/messages/m7", "good", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "m7", f.messages.deleted)

	f.messages.deleteErr = common.ErrNotSender
	w = f.do(http.MethodDelete, "/api/v1/messages/m7", "good", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	f.messages.convs = []*models.Conversation{{ID: "c1", Type: models.ConversationDirect, Participants: []string{"u1", "u2"}}}

	w := f.do(http.MethodGet, "/api/v1/conversations", "good", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []services.ConversationPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/auth/register", "", `{"email":"a@b.c","password":"secret","role":"caregiver"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "caregiver", f.accounts.registered.Role)

	f.accounts.regErr = common.ErrEmailTaken
	w = f.do(http.MethodPost, "/api/v1/auth/register", "", `{"email":"a@b.c","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"a","refresh_token":"r"}`, w.Body.String())

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.accounts.loginErr = common.ErrorUnauthorized
	w = f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"r"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"a2","refresh_token":"r2"}`, w.Body.String())

	f.accounts.refreshErr = common.ErrRefreshTokenExpired
	w = f.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"r"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.RateLimitRPS = 0.001
		d.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", "good", "").Code)
	}
	w := f.do(http.MethodGet, "/api/v1/me", "good", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestSocketAndMetricsMounted(t *testing.T) {
	hit := ""
	f := newFixture(t, func(d *Deps) {
		d.Socket = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = "ws" })
		d.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = "metrics" })
	})

	f.do(http.MethodGet, "/ws", "", "")
	assert.Equal(t, "ws", hit)
	f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, "metrics", hit)
}

func TestStatusFor(t *testing.T) {
	status, code, _ := statusFor(fmt.Errorf("wrap: %w", common.ErrTokenExpired))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", code)

	_, _, msg := statusFor(fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", common.ErrInvalidTarget)))
	assert.Equal(t, common.ErrInvalidTarget.Error(), msg)
}
