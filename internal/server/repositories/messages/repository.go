// Package messages is the authoritative message store.
package messages

import (
	"context"
	"time"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

type Repository interface {
	// Create inserts m with delivery state "sent"; the database assigns id
	// and created_at.
	Create(ctx context.Context, m *models.Message) (*models.Message, error)
	// GetByID returns the message even when it is soft-deleted.
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListPage returns non-deleted messages newest first.
	ListPage(ctx context.Context, conversationID string, limit, offset int) ([]*models.Message, error)
	// ListByIDs returns the non-deleted messages of the conversation among
	// ids created at or after since, oldest first. Unknown ids are skipped.
	ListByIDs(ctx context.Context, conversationID string, ids []string, since time.Time) ([]*models.Message, error)
	// MarkRead marks every unread, non-deleted message not sent by readerID
	// and reports how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// MarkDelivered moves a sent message to delivered and leaves others alone.
	MarkDelivered(ctx context.Context, id string) error
	// SoftDelete only succeeds for the sender of a live message.
	SoftDelete(ctx context.Context, id, senderID string) error
}
