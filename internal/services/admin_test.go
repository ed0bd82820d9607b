package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/models"
)

func provisionUser(t *testing.T, e *env, telegramID int64, username string) {
	t.Helper()
	p := submitChat(t, e, telegramID, username)
	_, err := e.provision.ProvisionTelegram(context.Background(), p, models.AccountTypeDefault)
	require.NoError(t, err)
}

func TestBan_RemovesAccountAndLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	provisionUser(t, e, 100, "alice")

	b, err := e.admin.Ban(ctx, 100, testAdminID, "spam")
	require.NoError(t, err)
	assert.Equal(t, "alice", b.Username)
	assert.Equal(t, testAdminID, b.BannedBy)

	assert.False(t, e.dir.has("alice"))

	_, err = e.repos.Links(e.db).Get(ctx, 100)
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestBan_UnlinkedIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.admin.Ban(ctx, 200, testAdminID, "abuse")
	require.NoError(t, err)
	assert.Empty(t, b.Username)

	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 200)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestBan_ToleratesAccountAlreadyGone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	provisionUser(t, e, 100, "alice")

	// The operator deleted the account directly on the server.
	require.NoError(t, e.dir.DeleteAccount(ctx, "alice"))

	_, err := e.admin.Ban(ctx, 100, testAdminID, "spam")
	assert.NoError(t, err)
}

func TestBan_DirectoryFailureAborts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	provisionUser(t, e, 100, "alice")

	e.dir.deleteErr = common.ErrDirectoryUnavailable

	_, err := e.admin.Ban(ctx, 100, testAdminID, "spam")
	assert.True(t, errors.Is(err, common.ErrDirectoryUnavailable))

	// Nothing was banned or unlinked while the directory still has the
	// account.
	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.False(t, banned)

	_, err = e.repos.Links(e.db).Get(ctx, 100)
	assert.NoError(t, err)
}

func TestUnban(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.admin.Ban(ctx, 100, testAdminID, "spam")
	require.NoError(t, err)

	require.NoError(t, e.admin.Unban(ctx, 100, testAdminID))

	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.False(t, banned)

	assert.True(t, errors.Is(e.admin.Unban(ctx, 100, testAdminID), common.ErrorNotFound))
}

func TestDeleteDirectoryAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	provisionUser(t, e, 100, "alice")

	require.NoError(t, e.admin.DeleteDirectoryAccount(ctx, "alice", testAdminID))
	assert.False(t, e.dir.has("alice"))

	// The link is dropped so the reconciliation worker does not ban the
	// former owner.
	_, err := e.repos.Links(e.db).Get(ctx, 100)
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	// But no ban was created either.
	banned, err := e.repos.Bans(e.db).IsBanned(ctx, 100)
	require.NoError(t, err)
	assert.False(t, banned)

	assert.True(t, errors.Is(
		e.admin.DeleteDirectoryAccount(ctx, "alice", testAdminID), common.ErrorNotFound))
}

func TestAdminListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	submitChat(t, e, 100, "alice")
	provisionUser(t, e, 101, "bob")
	_, err := e.admin.Ban(ctx, 102, testAdminID, "spam")
	require.NoError(t, err)

	pending, err := e.admin.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Username)

	links, err := e.admin.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "bob", links[0].Username)

	bans, err := e.admin.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, int64(102), bans[0].TelegramID)
}
