package meta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/talkreg/regbot/internal/migrations"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return db
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)

	got, err := repo.Get(context.Background(), "seal_salt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "seal_salt", []byte{1, 2, 3}))

	got, err := repo.Get(ctx, "seal_salt")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, repo.Set(ctx, "seal_salt", []byte{4, 5}))
	got, err = repo.Get(ctx, "seal_salt")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got)
}
