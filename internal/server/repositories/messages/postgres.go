package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// PostgresRepository stores messages over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a messages repository bound to db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectMessage = `SELECT id, conversation_id, sender_id, text, delivery_state, read, read_at, deleted, created_at
		FROM messages
		`

// Create inserts m in the sent state and fills ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, text, delivery_state)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	m.DeliveryState = models.DeliverySent
	err := r.db.QueryRowContext(ctx, query, m.ConversationID, m.SenderID, m.Text, string(m.DeliveryState)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return m, nil
}

// GetByID returns the message, deleted or not, or common.ErrMessageNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, selectMessage+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrMessageNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListPage returns limit non-deleted messages after skipping offset, newest
// first.
func (r *PostgresRepository) ListPage(ctx context.Context, conversationID string, limit, offset int) ([]*models.Message, error) {
	query := selectMessage + `WHERE conversation_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanMessages(rows)
}

// ListByIDs loads the non-deleted messages of conversationID among ids that
// were created at or after since, oldest first. The ids travel as one
// comma-separated parameter, as in the attachments repository.
func (r *PostgresRepository) ListByIDs(ctx context.Context, conversationID string, ids []string, since time.Time) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := selectMessage + `WHERE conversation_id = $1 AND NOT deleted
		AND id::text = ANY(string_to_array($2, ','))
		AND created_at >= $3
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, conversationID, strings.Join(ids, ","), since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkRead marks every unread, non-deleted message in the conversation that
// readerID did not send, and reports how many changed.
func (r *PostgresRepository) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	query := `
		UPDATE messages SET read = TRUE, read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read AND NOT deleted
	`
	res, err := r.db.ExecContext(ctx, query, conversationID, readerID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// MarkDelivered is a no-op for messages that are already delivered.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, id string) error {
	query := `UPDATE messages SET delivery_state = 'delivered' WHERE id = $1 AND delivery_state = 'sent'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SoftDelete flags the message as deleted when senderID sent it. A missing,
// foreign or already deleted message yields common.ErrMessageNotFound.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id, senderID string) error {
	query := `UPDATE messages SET deleted = TRUE WHERE id = $1 AND sender_id = $2 AND NOT deleted`
	res, err := r.db.ExecContext(ctx, query, id, senderID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrMessageNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*models.Message, error) {
	m := &models.Message{}
	var state string
	var readAt sql.NullTime
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &state, &m.Read, &readAt, &m.Deleted, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.DeliveryState = models.DeliveryState(state)
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}
