package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/carenest/internal/cachex"
	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the user-lookup collaborator. Lookups return
// common.ErrorNotFound for missing users; Create and SetExternalID return
// common.ErrConflict when a uniqueness constraint rejects the write.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetExternalID(ctx context.Context, userID, externalID string) error
	Create(ctx context.Context, u *models.User) (*models.User, error)
}

// Resolver verifies bearer tokens and maps them to one internal user.
type Resolver struct {
	classifier Classifier
	users      UserStore
	secretKey  []byte
	issuer     string
	verifier   ExternalVerifier
	cache      *cachex.TTL[string, *models.User]
	logger     logging.Logger
	now        func() time.Time
	hash       func(password []byte) ([]byte, error)
}

type ResolverOption func(*Resolver)

func WithClassifier(c Classifier) ResolverOption { return func(r *Resolver) { r.classifier = c } }

// WithExternalIssuer requires external tokens to carry this iss claim.
func WithExternalIssuer(iss string) ResolverOption { return func(r *Resolver) { r.issuer = iss } }

func WithExternalVerifier(v ExternalVerifier) ResolverOption {
	return func(r *Resolver) { r.verifier = v }
}

// WithUserCache caches LOCAL-path user lookups by id.
func WithUserCache(c *cachex.TTL[string, *models.User]) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

func WithLogger(l logging.Logger) ResolverOption { return func(r *Resolver) { r.logger = l } }

func WithClock(now func() time.Time) ResolverOption { return func(r *Resolver) { r.now = now } }

func NewResolver(users UserStore, secretKey []byte, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		users:     users,
		secretKey: secretKey,
		logger:    logging.Nop{},
		now:       time.Now,
		hash: func(p []byte) ([]byte, error) {
			return bcrypt.GenerateFromPassword(p, bcrypt.DefaultCost)
		},
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("module", "auth")
	return r
}

// Resolve classifies and verifies token and returns the caller's Session.
// Every error it returns satisfies common.IsAuthentication, except
// unexpected store failures which are passed through wrapped.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.ErrTokenMissing
	}

	switch r.classifier.Classify(token) {
	case KindLocal:
		return r.resolveLocal(ctx, token)
	case KindExternal:
		return r.resolveExternal(ctx, token)
	default:
		return nil, common.ErrTokenMalformed
	}
}

// ForgetUser drops a cached user, e.g. after a role change.
func (r *Resolver) ForgetUser(userID string) { r.cache.Delete(userID) }

// ClearCache drops every cached user.
func (r *Resolver) ClearCache() { r.cache.Clear() }

func (r *Resolver) resolveLocal(ctx context.Context, token string) (*Session, error) {
	claims, err := parseLocal(token, r.secretKey, r.now)
	if err != nil {
		return nil, err
	}

	user, ok := r.cache.Get(claims.UserID)
	if !ok {
		user, err = r.users.GetByID(ctx, claims.UserID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		r.cache.Set(user.ID, user)
	}

	return newSession(user, KindLocal), nil
}

func (r *Resolver) resolveExternal(ctx context.Context, token string) (*Session, error) {
	if r.verifier != nil {
		if err := r.verifier.Verify(ctx, token); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrTokenInvalidSignature, err)
		}
	}

	claims, err := decodeExternal(token, r.now(), r.issuer)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" && claims.Email == "" {
		return nil, common.ErrExternalUserUnresolved
	}

	user, err := r.correlate(ctx, claims)
	if errors.Is(err, common.ErrConflict) {
		// A concurrent first contact won the insert or the backfill.
		user, err = r.lookup(ctx, claims)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrExternalUserUnresolved
		}
	}
	if err != nil {
		return nil, err
	}

	return newSession(user, KindExternal), nil
}

// correlate finds the user for claims, backfilling or creating as needed.
func (r *Resolver) correlate(ctx context.Context, c *ExternalClaims) (*models.User, error) {
	user, err := r.lookup(ctx, c)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return r.createExternal(ctx, c)
}

// lookup tries the external id, then the e-mail address. An e-mail match
// without an external id gets the token's subject written back.
func (r *Resolver) lookup(ctx context.Context, c *ExternalClaims) (*models.User, error) {
	if c.Subject != "" {
		user, err := r.users.GetByExternalID(ctx, c.Subject)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("lookup external user: %w", err)
		}
	}

	if c.Email == "" {
		return nil, common.ErrorNotFound
	}

	user, err := r.users.GetByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	switch {
	case c.Subject == "" || user.ExternalID == c.Subject:
	case user.ExternalID == "":
		if err := r.users.SetExternalID(ctx, user.ID, c.Subject); err != nil {
			return nil, err
		}
		user.ExternalID = c.Subject
		r.logger.Info(ctx, "external id linked", "user_id", user.ID)
	default:
		r.logger.Warn(ctx, "email already linked to another external id", "user_id", user.ID)
	}

	return user, nil
}

func (r *Resolver) createExternal(ctx context.Context, c *ExternalClaims) (*models.User, error) {
	placeholder, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("placeholder credential: %w", err)
	}
	hash, err := r.hash([]byte(placeholder))
	if err != nil {
		return nil, fmt.Errorf("placeholder credential: %w", err)
	}

	user, err := r.users.Create(ctx, &models.User{
		ExternalID:   c.Subject,
		Email:        c.Email,
		Name:         c.Name,
		Role:         r.firstContactRole(c.Role),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "user created on first external contact", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// firstContactRole trusts the claimed role only as far as it can: admin is
// honoured only when external signatures are actually verified.
func (r *Resolver) firstContactRole(raw string) models.Role {
	role := models.NormalizeRole(raw)
	if !role.Known() {
		return models.RoleParent
	}
	if role == models.RoleAdmin && r.verifier == nil {
		return models.RoleParent
	}
	return role
}

func newSession(u *models.User, kind TokenKind) *Session {
	return &Session{
		UserID:     u.ID,
		Role:       models.NormalizeRole(string(u.Role)),
		Email:      u.Email,
		Name:       u.Name,
		ExternalID: u.ExternalID,
		Kind:       kind,
	}
}
