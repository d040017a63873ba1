// Package ws is the websocket transport for the presence hub.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/metrics"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/presence"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

type Authenticator interface {
	Resolve(ctx context.Context, token string) (*auth.Session, error)
}

// Access decides whether a user may join a conversation room.
type Access interface {
	CanAccess(ctx context.Context, conversationID, userID string) error
}

type roomRequest struct {
	ConversationID string `json:"conversationId"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type Handler struct {
	resolver Authenticator
	access   Access
	hub      *presence.Hub
	metrics  *metrics.Metrics
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(resolver Authenticator, access Access, hub *presence.Hub, m *metrics.Metrics, l logging.Logger) *Handler {
	if l == nil {
		l = logging.Nop{}
	}
	return &Handler{
		resolver: resolver,
		access:   access,
		hub:      hub,
		metrics:  m,
		logger:   l.With("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the handshake and upgrades only on success.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		h.reject(w, r, common.ErrTokenMissing)
		return
	}
	s, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		if !common.IsAuthentication(err) {
			h.logger.Error(r.Context(), "handshake failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.reject(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "upgrade failed", "error", err)
		return
	}

	c := h.hub.Register(s.UserID)
	h.metrics.ConnectionOpened()
	h.logger.Debug(r.Context(), "connected", "connection_id", c.ID, "user_id", s.UserID)

	// the request context ends with the handler, the connection outlives it
	ctx := auth.WithSession(context.Background(), s)
	go h.writePump(conn, c)
	go h.readPump(ctx, conn, c)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	h.metrics.AuthFailed("ws")
	h.logger.Debug(r.Context(), "handshake rejected", "error", err)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, c *presence.Client) {
	defer func() {
		h.hub.Unregister(c)
		h.metrics.ConnectionClosed()
		conn.Close()
		h.logger.Debug(ctx, "disconnected", "connection_id", c.ID, "user_id", c.UserID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(ctx, "read failed", "connection_id", c.ID, "error", err)
			}
			return
		}
		var env presence.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(c, "invalid frame")
			continue
		}
		h.dispatch(ctx, c, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *presence.Client, env presence.Envelope) {
	var req roomRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.sendError(c, "invalid payload")
			return
		}
	}
	// rooms are keyed by the canonical id the services emit to
	if id, ok := models.CanonicalID(req.ConversationID); ok {
		req.ConversationID = id
	}

	switch env.Event {
	case presence.EventJoin:
		if req.ConversationID == "" {
			h.sendError(c, "conversationId is required")
			return
		}
		if err := h.access.CanAccess(ctx, req.ConversationID, c.UserID); err != nil {
			if common.IsAuthorization(err) || common.IsNotFound(err) {
				h.sendError(c, common.ErrAccessDenied.Error())
				return
			}
			h.logger.Error(ctx, "join check failed", "conversation_id", req.ConversationID, "error", err)
			h.sendError(c, "internal error")
			return
		}
		h.hub.Join(c, req.ConversationID)
		_ = h.hub.SendTo(c, presence.EventJoined, roomRequest{ConversationID: req.ConversationID})

	case presence.EventLeave:
		h.hub.Leave(c, req.ConversationID)

	case presence.EventTypingStart, presence.EventTypingStop:
		if !h.hub.InRoom(c, req.ConversationID) {
			h.sendError(c, "join the conversation first")
			return
		}
		payload := typingPayload{ConversationID: req.ConversationID, UserID: c.UserID}
		if err := h.hub.EmitOthers(ctx, req.ConversationID, env.Event, payload, c.UserID); err != nil {
			h.logger.Warn(ctx, "typing relay failed", "conversation_id", req.ConversationID, "error", err)
		}

	default:
		h.sendError(c, "unknown event")
	}
}

func (h *Handler) sendError(c *presence.Client, msg string) {
	_ = h.hub.SendTo(c, presence.EventError, errorPayload{Message: msg})
}

func (h *Handler) writePump(conn *websocket.Conn, c *presence.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
