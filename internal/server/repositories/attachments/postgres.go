package attachments

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// PostgresRepository implements attachment storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns an attachments repository bound to db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a and fills its ID.
func (r *PostgresRepository) Create(ctx context.Context, a *models.Attachment) error {
	query := `
		INSERT INTO message_attachments (message_id, storage_key, name, mime_type, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, a.MessageID, a.StorageKey, a.Name, a.MimeType, a.Size).Scan(&a.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByMessageIDs passes the ids as one comma-separated parameter so the
// query shape does not depend on how many messages are on the page.
func (r *PostgresRepository) ListByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.Attachment, error) {
	result := make(map[string][]models.Attachment, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query := ` SELECT id, message_id, storage_key, name, mime_type, size FROM message_attachments
		WHERE message_id::text = ANY(string_to_array($1, ','))
		ORDER BY created_at, id
		`
	rows, err := r.db.QueryContext(ctx, query, strings.Join(messageIDs, ","))
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.Attachment
		if err := rows.Scan(&item.ID, &item.MessageID, &item.StorageKey, &item.Name, &item.MimeType, &item.Size); err != nil {
			return nil, err
		}
		result[item.MessageID] = append(result[item.MessageID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
