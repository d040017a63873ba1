// Package attachments stores metadata for message attachments. The blobs
// themselves live in object storage under StorageKey.
package attachments

import (
	"context"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Attachment) error
	// ListByMessageIDs returns attachments grouped by message id.
	ListByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.Attachment, error)
}
