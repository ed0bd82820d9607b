package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/logging"
)

func newBanSync(e *env) *BanSyncWorker {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewBanSyncWorker(e.db, e.repos, e.dir, e.notifier, e.cfg, logger)
}

func TestBanSync_BansMissingAccounts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := newBanSync(e)

	provisionUser(t, e, 100, "alice")
	provisionUser(t, e, 101, "bob")

	// bob gets deleted directly on the server.
	require.NoError(t, e.dir.DeleteAccount(ctx, "bob"))

	require.NoError(t, w.RunOnce(ctx))

	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 101)
	require.NoError(t, err)
	assert.True(t, banned)

	b, err := e.repos.Bans(e.db).Get(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, banSyncReason, b.Reason)
	assert.Equal(t, int64(0), b.BannedBy)

	_, err = e.repos.Links(e.db).Get(ctx, 101)
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	// alice is untouched.
	bannedAlice, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.False(t, bannedAlice)
	_, err = e.repos.Links(e.db).Get(ctx, 100)
	assert.NoError(t, err)

	// Both the user and the admins were told.
	assert.NotEmpty(t, e.notifier.userTexts[101])
	assert.NotEmpty(t, e.notifier.adminTexts)
}

func TestBanSync_EmptyListingSkipsCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := newBanSync(e)

	provisionUser(t, e, 100, "alice")
	require.NoError(t, e.dir.DeleteAccount(ctx, "alice"))

	// The directory now reports zero accounts while links exist. This
	// looks like a truncated reply, so nobody gets banned.
	require.NoError(t, w.RunOnce(ctx))

	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.False(t, banned)
	_, err = e.repos.Links(e.db).Get(ctx, 100)
	assert.NoError(t, err)
}

func TestBanSync_DirectoryErrorSkipsCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := newBanSync(e)

	provisionUser(t, e, 100, "alice")
	e.dir.listErr = common.ErrDirectoryUnavailable

	err := w.RunOnce(ctx)
	assert.True(t, errors.Is(err, common.ErrDirectoryUnavailable))

	banned, berr := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, berr)
	assert.False(t, banned)
}

func TestBanSync_NoLinksIsNoop(t *testing.T) {
	e := newEnv(t)
	w := newBanSync(e)

	assert.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, e.notifier.adminTexts)
}
