// Package users provides the PostgreSQL-backed user repository.
package users

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

// PostgresRepository stores users over a dbx.DBTX, so the same code runs
// inside or outside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a users repository bound to db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUser = `SELECT id, COALESCE(external_id, ''), COALESCE(email, ''), name, role, password_hash, created_at
		 FROM users
		 `

// Create inserts user, lower-casing the email, and fills ID and CreatedAt.
// A taken email or external id is reported as common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (external_id, email, name, role, password_hash)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	err := r.db.QueryRowContext(ctx, query,
		nullable(user.ExternalID), nullable(user.Email), user.Name, string(user.Role), user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrConflict, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetByID returns the user with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+`WHERE id = $1`, id)
}

// GetByExternalID looks a user up by the subject of an external identity
// token.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.getOne(ctx, selectUser+`WHERE external_id = $1`, externalID)
}

// GetByEmail matches email case-insensitively.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+`WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

// SetExternalID links externalID to a user that has none yet. It returns
// common.ErrConflict when the user is already linked or externalID belongs to
// someone else.
func (r *PostgresRepository) SetExternalID(ctx context.Context, userID, externalID string) error {
	query :=
		`UPDATE users SET external_id = $2
		 WHERE id = $1 AND external_id IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, userID, externalID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", common.ErrConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrConflict
	}

	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	var role string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.Name, &role, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Role = models.NormalizeRole(role)
	return user, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
