package users

import (
	"context"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// Repository is the user-lookup collaborator. Missing users yield
// common.ErrorNotFound; uniqueness violations yield common.ErrConflict.
type Repository interface {
	// Create returns common.ErrConflict for a taken email or external id.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// SetExternalID only fills an empty external id; it never overwrites.
	SetExternalID(ctx context.Context, userID, externalID string) error
}
