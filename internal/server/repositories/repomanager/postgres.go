package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/migrations"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/messages"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// migrationDialect is the goose dialect matching the pgx stdlib driver.
const migrationDialect = "pgx"

// gooseUp is replaced in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

type postgresManager struct{}

var _ RepositoryManager = postgresManager{}

// NewPostgresRepositoryManager returns the manager used by the server: every
// repository speaks PostgreSQL and the schema comes from the embedded goose
// migrations.
func NewPostgresRepositoryManager() RepositoryManager {
	return postgresManager{}
}

// RunMigrations brings the schema for users, conversations, messages,
// attachments and refresh tokens up to date.
func (postgresManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(migrationDialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (postgresManager) Users(db dbx.DBTX) users.Repository { return users.NewPostgresRepository(db) }

func (postgresManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

func (postgresManager) Conversations(db dbx.DBTX) conversations.Repository {
	return conversations.NewPostgresRepository(db)
}

func (postgresManager) Messages(db dbx.DBTX) messages.Repository {
	return messages.NewPostgresRepository(db)
}

func (postgresManager) Attachments(db dbx.DBTX) attachments.Repository {
	return attachments.NewPostgresRepository(db)
}
