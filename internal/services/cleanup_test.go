package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
)

func TestCleanup_RunOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	payloadDir := t.TempDir()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	w := NewCleanupWorker(e.db, e.repos, payloadDir, e.cfg, logger)

	// An expired download token.
	require.NoError(t, e.repos.Tokens(e.db).CreateDownload(ctx, &models.DownloadToken{
		Token: "stale", FilePath: "/tmp/x.tt", OriginalName: "x.tt", Kind: "ttfile",
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
	}))
	// A live one.
	live, err := e.tokens.IssueDownload(ctx, "/tmp/y.tt", "y.tt", "ttfile")
	require.NoError(t, err)

	// A pending registration past its TTL and a fresh one.
	old := &models.PendingTelegramRegistration{
		RequestKey: "old-req", TelegramID: 1, Username: "olduser", Password: "pw",
		Nickname: "old", CreatedAt: now.Add(-e.cfg.PendingTTL - time.Hour),
	}
	require.NoError(t, e.repos.Pendings(e.db).CreateTelegram(ctx, old))
	fresh := submitChat(t, e, 2, "freshuser")

	// An aged IP record.
	require.NoError(t, e.repos.IPs(e.db).Create(ctx, &models.RegisteredIP{
		IPAddress: "10.0.0.9", Username: "olduser",
		RegisteredAt: now.Add(-e.cfg.RegisteredIPTTL - time.Hour),
	}))

	// One stale payload file, one fresh.
	stalePath := filepath.Join(payloadDir, "stale.tt")
	freshPath := filepath.Join(payloadDir, "fresh.tt")
	require.NoError(t, os.WriteFile(stalePath, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(freshPath, []byte("x"), 0o600))
	oldTime := now.Add(-3 * e.cfg.DownloadTokenTTL)
	require.NoError(t, os.Chtimes(stalePath, oldTime, oldTime))

	w.RunOnce(ctx)

	_, err = e.tokens.RedeemDownload(ctx, "stale")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	_, err = e.tokens.RedeemDownload(ctx, live.Token)
	assert.NoError(t, err)

	_, err = e.repos.Pendings(e.db).GetTelegram(ctx, "old-req")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	_, err = e.repos.Pendings(e.db).GetTelegram(ctx, fresh.RequestKey)
	assert.NoError(t, err)

	exists, err := e.repos.IPs(e.db).Exists(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = os.Stat(stalePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}
