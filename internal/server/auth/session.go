package auth

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// Session is the identity attached to one request or socket connection.
// It is rebuilt from the token every time and never stored server-side.
type Session struct {
	UserID     string
	Role       models.Role
	Email      string
	Name       string
	ExternalID string
	Kind       TokenKind
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s. Log records written with
// the returned context are tagged with the user id.
func WithSession(ctx context.Context, s *Session) context.Context {
	ctx = logging.ContextWith(ctx, "user_id", s.UserID)
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the Session placed by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil && s.UserID != ""
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(common.BearerPrefix)) {
		return "", common.ErrTokenMissing
	}
	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", common.ErrTokenMalformed
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	if token == "" {
		return "", common.ErrTokenMissing
	}
	return token, nil
}
