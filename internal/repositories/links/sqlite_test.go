package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/talkreg/regbot/internal/common"
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

func TestUpsertGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, 1001, "alice"))

	got, err := repo.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	// Upsert replaces the previous username for the same identity.
	require.NoError(t, repo.Upsert(ctx, 1001, "alice2"))
	got, err = repo.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)
}

func TestGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.Get(context.Background(), 404)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestGetByUsername(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, 1001, "alice"))

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), got.TelegramID)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestUsernameUniqueAcrossIdentities(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, 1001, "alice"))
	assert.Error(t, repo.Upsert(ctx, 2002, "alice"),
		"a directory username may be linked to at most one chat identity")
}

func TestListAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, 2002, "bob"))
	require.NoError(t, repo.Upsert(ctx, 1001, "alice"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1001), list[0].TelegramID)

	deleted, err := repo.Delete(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, deleted)
}
