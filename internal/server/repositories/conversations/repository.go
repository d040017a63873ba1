// Package conversations stores conversations and their participant sets.
package conversations

import (
	"context"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

type Repository interface {
	// Create inserts the conversation row. When another direct conversation
	// already owns c.DirectKey it returns common.ErrConflict and writes nothing.
	Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
	// AddParticipant is idempotent.
	AddParticipant(ctx context.Context, conversationID, userID string) error
	// GetByID and FindDirect load participants too and return
	// common.ErrConversationNotFound for a miss.
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	FindDirect(ctx context.Context, directKey string) (*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	// Touch points last_message_id at messageID and bumps updated_at.
	Touch(ctx context.Context, conversationID, messageID string) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)
}
