package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// banSyncReason marks bans created by the reconciliation worker rather
// than by an admin.
const banSyncReason = "Account deleted from TeamTalk server"

// BanSyncWorker periodically reconciles local account links against the
// directory. An account that disappeared from the directory is treated as
// an operator-side deletion: the chat identity is banned so it cannot
// simply re-register.
type BanSyncWorker struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	dir      directory.Client
	notifier Notifier
	cfg      *config.Config
	logger   logging.Logger
}

// NewBanSyncWorker constructs a BanSyncWorker.
func NewBanSyncWorker(db *sql.DB, m repomanager.RepositoryManager, dir directory.Client,
	notifier Notifier, cfg *config.Config, logger logging.Logger) *BanSyncWorker {
	return &BanSyncWorker{
		db:       db,
		repos:    m,
		dir:      dir,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("module", "bansync"),
	}
}

// Run reconciles on the configured interval until ctx is canceled.
func (w *BanSyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.BanSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error(ctx, "ban sync cycle failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single reconciliation pass. Directory failures skip
// the pass entirely; a partial or empty account list must never trigger
// mass bans.
func (w *BanSyncWorker) RunOnce(ctx context.Context) error {
	accounts, err := w.dir.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list directory accounts: %w", err)
	}

	links, err := w.repos.Links(w.db).List(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	// An empty listing while links exist looks like a truncated reply or a
	// freshly wiped server. Either way, not a safe basis for banning.
	if len(accounts) == 0 {
		w.logger.Warn(ctx, "directory returned no accounts while links exist, skipping cycle",
			"links", len(links))
		return nil
	}

	existing := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		existing[a.Username] = struct{}{}
	}

	for _, link := range links {
		if _, ok := existing[link.Username]; ok {
			continue
		}
		if err := w.banMissing(ctx, link); err != nil {
			w.logger.Error(ctx, "failed to ban user for deleted account",
				"telegram_id", link.TelegramID, "username", link.Username, "error", err)
			continue
		}

		w.logger.Info(ctx, "banned user for deleted directory account",
			"telegram_id", link.TelegramID, "username", link.Username)
		w.notifier.NotifyUser(ctx, link.TelegramID, fmt.Sprintf(
			"Your account %q was removed from the server. Contact an administrator if you believe this is a mistake.", link.Username))
		w.notifier.NotifyAdmins(ctx, fmt.Sprintf(
			"Ban sync: account %q no longer exists on the server, user %d was banned.", link.Username, link.TelegramID))
	}
	return nil
}

func (w *BanSyncWorker) banMissing(ctx context.Context, link *models.AccountLink) error {
	return dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := w.repos.Bans(tx).Upsert(ctx, &models.BannedUser{
			TelegramID: link.TelegramID,
			Username:   link.Username,
			BannedAt:   time.Now().UTC(),
			BannedBy:   0,
			Reason:     banSyncReason,
		})
		if err != nil {
			return err
		}
		_, err = w.repos.Links(tx).Delete(ctx, link.TelegramID)
		return err
	})
}
