// Package repomanager hands out repositories bound to either the pool or a
// running transaction, and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/carenest/internal/dbx"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/messages"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/carenest/internal/server/repositories/users"
)

type RepositoryManager interface {
	// RunMigrations applies the embedded goose migrations to db.
	RunMigrations(ctx context.Context, db *sql.DB) error

	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	Messages(db dbx.DBTX) messages.Repository
	Attachments(db dbx.DBTX) attachments.Repository
}
