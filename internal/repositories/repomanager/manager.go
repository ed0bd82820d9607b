// Package repomanager vends repositories bound to a *sql.DB or *sql.Tx and
// owns database bootstrap: opening the SQLite file with the required
// pragmas and applying embedded migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/repositories/bans"
	"github.com/talkreg/regbot/internal/repositories/ips"
	"github.com/talkreg/regbot/internal/repositories/links"
	"github.com/talkreg/regbot/internal/repositories/meta"
	"github.com/talkreg/regbot/internal/repositories/pendings"
	"github.com/talkreg/regbot/internal/repositories/tokens"
)

// RepositoryManager vends repositories bound to the given DBTX, so the
// same repository code runs inside and outside transactions.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Pendings(db dbx.DBTX) pendings.Repository
	Links(db dbx.DBTX) links.Repository
	Bans(db dbx.DBTX) bans.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	IPs(db dbx.DBTX) ips.Repository
	Meta(db dbx.DBTX) meta.Repository
}
