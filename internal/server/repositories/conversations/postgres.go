package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// PostgresRepository stores conversations and their participants over a
// dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a conversations repository bound to db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Participants are folded into one comma-separated column to keep reads to
// a single round trip.
const selectConversation = `SELECT c.id, c.type, COALESCE(c.job_id, ''), COALESCE(c.direct_key, ''),
		COALESCE(c.last_message_id::text, ''), c.created_at, c.updated_at,
		COALESCE((SELECT string_agg(p.user_id::text, ',' ORDER BY p.user_id)
		          FROM conversation_participants p WHERE p.conversation_id = c.id), '')
		FROM conversations c
		`

// Create inserts c and fills ID, CreatedAt and UpdatedAt. When another
// conversation already holds c.DirectKey nothing is written and
// common.ErrConflict is returned.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (type, job_id, direct_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (direct_key) WHERE direct_key IS NOT NULL DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, string(c.Type), nullable(c.JobID), nullable(c.DirectKey)).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

// AddParticipant adds userID to the conversation; adding an existing
// participant is a no-op.
func (r *PostgresRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	query := `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, conversationID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the conversation with its participants, or
// common.ErrConversationNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.getOne(ctx, selectConversation+`WHERE c.id = $1`, id)
}

// FindDirect returns the conversation owning directKey.
func (r *PostgresRepository) FindDirect(ctx context.Context, directKey string) (*models.Conversation, error) {
	return r.getOne(ctx, selectConversation+`WHERE c.direct_key = $1`, directKey)
}

// IsParticipant reports whether userID belongs to the conversation. An
// unknown conversation reports false.
func (r *PostgresRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// Touch records messageID as the latest message and bumps updated_at.
func (r *PostgresRepository) Touch(ctx context.Context, conversationID, messageID string) error {
	query := `
		UPDATE conversations
		SET last_message_id = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrConversationNotFound
	}
	return nil
}

// ListForUser returns up to limit conversations userID takes part in, most
// recently updated first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	query := selectConversation + `JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrConversationNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var typ, participants string
	if err := s.Scan(&c.ID, &typ, &c.JobID, &c.DirectKey, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt, &participants); err != nil {
		return nil, err
	}
	c.Type = models.ConversationType(typ)
	if participants != "" {
		c.Participants = strings.Split(participants, ",")
	}
	return c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
