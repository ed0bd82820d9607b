package services

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// CleanupWorker evicts expired tokens, stale pending registrations, aged
// IP records, and orphaned payload files on a fixed interval.
type CleanupWorker struct {
	db         *sql.DB
	repos      repomanager.RepositoryManager
	payloadDir string
	cfg        *config.Config
	logger     logging.Logger
}

// NewCleanupWorker constructs a CleanupWorker.
func NewCleanupWorker(db *sql.DB, m repomanager.RepositoryManager, payloadDir string,
	cfg *config.Config, logger logging.Logger) *CleanupWorker {
	return &CleanupWorker{
		db:         db,
		repos:      m,
		payloadDir: payloadDir,
		cfg:        cfg,
		logger:     logger.With("module", "cleanup"),
	}
}

// Run evicts on the configured interval until ctx is canceled. One pass
// runs immediately so restarts do not postpone eviction by a full interval.
func (w *CleanupWorker) Run(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single eviction pass. Each step is independent; a
// failing step is logged and the rest still run.
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := w.repos.Tokens(w.db).PurgeExpired(ctx, now); err != nil {
		w.logger.Error(ctx, "failed to purge tokens", "error", err)
	} else if n > 0 {
		w.logger.Info(ctx, "purged tokens", "count", n)
	}

	if n, err := w.repos.Pendings(w.db).PurgeOlderThan(ctx, now.Add(-w.cfg.PendingTTL)); err != nil {
		w.logger.Error(ctx, "failed to purge pending registrations", "error", err)
	} else if n > 0 {
		w.logger.Info(ctx, "purged pending registrations", "count", n)
	}

	if n, err := w.repos.IPs(w.db).PurgeOlderThan(ctx, now.Add(-w.cfg.RegisteredIPTTL)); err != nil {
		w.logger.Error(ctx, "failed to purge registered addresses", "error", err)
	} else if n > 0 {
		w.logger.Info(ctx, "purged registered addresses", "count", n)
	}

	w.purgePayloads(ctx, now)
}

// purgePayloads removes connection files old enough that any download
// token minted for them has long expired.
func (w *CleanupWorker) purgePayloads(ctx context.Context, now time.Time) {
	cutoff := now.Add(-2 * w.cfg.DownloadTokenTTL)

	entries, err := os.ReadDir(w.payloadDir)
	if err != nil {
		w.logger.Error(ctx, "failed to read payload directory", "error", err)
		return
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.payloadDir, e.Name())); err != nil {
			w.logger.Error(ctx, "failed to remove payload file", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info(ctx, "purged payload files", "count", removed)
	}
}
