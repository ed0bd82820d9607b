package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/migrations"
	"github.com/talkreg/regbot/internal/repositories/bans"
	"github.com/talkreg/regbot/internal/repositories/ips"
	"github.com/talkreg/regbot/internal/repositories/links"
	"github.com/talkreg/regbot/internal/repositories/meta"
	"github.com/talkreg/regbot/internal/repositories/pendings"
	"github.com/talkreg/regbot/internal/repositories/tokens"
)

// SQLiteRepositoryManager implements RepositoryManager for SQLite.
type SQLiteRepositoryManager struct{}

// NewSQLiteRepositoryManager constructs a SQLiteRepositoryManager.
func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

// Open opens (creating if necessary) the SQLite database at path with WAL
// journaling, a 5 second busy timeout, and foreign keys enabled. Missing
// parent directories are created.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o770); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations to db.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func (m *SQLiteRepositoryManager) Pendings(db dbx.DBTX) pendings.Repository {
	return pendings.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Links(db dbx.DBTX) links.Repository {
	return links.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Bans(db dbx.DBTX) bans.Repository {
	return bans.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Tokens(db dbx.DBTX) tokens.Repository {
	return tokens.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) IPs(db dbx.DBTX) ips.Repository {
	return ips.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Meta(db dbx.DBTX) meta.Repository {
	return meta.NewSQLiteRepository(db)
}
