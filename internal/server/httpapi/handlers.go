package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	TokenKind  string `json:"tokenKind"`
}

type attachmentRequest struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

type sendRequest struct {
	ConversationID string              `json:"conversationId"`
	RecipientID    string              `json:"recipientId"`
	JobID          string              `json:"jobId"`
	Text           string              `json:"text"`
	Attachments    []attachmentRequest `json:"attachments"`
}

type readResponse struct {
	MarkedCount int64     `json:"markedCount"`
	ReadAt      time.Time `json:"readAt"`
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func session(r *http.Request) *auth.Session {
	s, _ := auth.FromContext(r.Context())
	return s
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.Register(r.Context(), services.RegisterRequest{
		Email: req.Email, Password: req.Password, Role: req.Role, Name: req.Name,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "Registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role.String()})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, r, common.ErrInvalidCredentials)
		return
	}
	pair, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, r, common.ErrTokenMissing)
		return
	}
	pair, err := h.accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	writeJSON(w, http.StatusOK, meResponse{
		UserID:     s.UserID,
		Role:       s.Role.String(),
		Email:      s.Email,
		Name:       s.Name,
		ExternalID: s.ExternalID,
		TokenKind:  s.Kind.String(),
	})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !h.decode(w, r, &req) {
		return
	}

	uploads := make([]services.AttachmentUpload, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		uploads = append(uploads, services.AttachmentUpload{Data: a.Data, MimeType: a.MimeType, Name: a.Name})
	}

	msg, err := h.messages.Send(r.Context(), session(r).UserID, services.SendRequest{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		JobID:          req.JobID,
		Text:           req.Text,
		Attachments:    uploads,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.NewMessagePayload(msg))
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	n, at, err := h.messages.MarkRead(r.Context(), mux.Vars(r)["id"], session(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readResponse{MarkedCount: n, ReadAt: at})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	mirror, _ := strconv.ParseBool(q.Get("mirror"))

	msgs, err := h.messages.History(r.Context(), services.HistoryRequest{
		ConversationID: mux.Vars(r)["id"],
		RequesterID:    session(r).UserID,
		Page:           page,
		PageSize:       size,
		IncludeMirror:  mirror,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.NewMessagePayloads(msgs))
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.Delete(r.Context(), mux.Vars(r)["id"], session(r).UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.messages.Conversations(r.Context(), session(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]services.ConversationPayload, 0, len(convs))
	for _, c := range convs {
		out = append(out, services.NewConversationPayload(c))
	}
	writeJSON(w, http.StatusOK, out)
}
