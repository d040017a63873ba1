package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"github.com/dmitrijs2005/carenest/internal/server/metrics"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/dmitrijs2005/carenest/internal/server/services"
	"github.com/gorilla/mux"
)

// Authenticator resolves a bearer credential to a Session.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*auth.Session, error)
}

// Messages is the messaging surface the REST API exposes.
type Messages interface {
	Send(ctx context.Context, senderID string, req services.SendRequest) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, time.Time, error)
	History(ctx context.Context, req services.HistoryRequest) ([]*models.Message, error)
	Delete(ctx context.Context, messageID, requesterID string) error
	Conversations(ctx context.Context, userID string) ([]*models.Conversation, error)
}

// Accounts issues local credentials.
type Accounts interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type Deps struct {
	Resolver Authenticator
	Messages Messages
	Accounts Accounts
	// Socket serves GET /ws; it authenticates on its own.
	Socket         http.Handler
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Logger         logging.Logger
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxBodyBytes caps request bodies; zero means 16 MiB.
	MaxBodyBytes int64
}

type handler struct {
	resolver     Authenticator
	messages     Messages
	accounts     Accounts
	metrics      *metrics.Metrics
	logger       logging.Logger
	limiter      *limiterPool
	maxBodyBytes int64
}

// NewHandler builds the HTTP routing tree.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	h := &handler{
		resolver:     d.Resolver,
		messages:     d.Messages,
		accounts:     d.Accounts,
		metrics:      d.Metrics,
		logger:       logger.With("module", "httpapi"),
		limiter:      newLimiterPool(d.RateLimitRPS, d.RateLimitBurst),
		maxBodyBytes: d.MaxBodyBytes,
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = 16 << 20
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler).Methods(http.MethodGet)
	}
	if d.Socket != nil {
		r.Handle("/ws", d.Socket).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	public := api.NewRoute().Subrouter()
	public.Use(h.rateLimit)
	public.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(h.authenticate, h.rateLimit)
	private.HandleFunc("/me", h.me).Methods(http.MethodGet)
	private.HandleFunc("/messages", h.sendMessage).Methods(http.MethodPost)
	private.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)
	private.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	private.HandleFunc("/conversations/{id}/read", h.markRead).Methods(http.MethodPost)
	private.HandleFunc("/conversations/{id}/messages", h.history).Methods(http.MethodGet)

	return r
}
