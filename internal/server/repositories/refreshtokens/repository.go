// Package refreshtokens declares the server-side repository contract for
// refresh tokens of locally issued credentials.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// Repository issues and consumes refresh tokens.
type Repository interface {
	// Create stores token for userID, valid until expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Consume deletes the token and returns what it was. A token can be
	// consumed once; later calls return common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired purges tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
