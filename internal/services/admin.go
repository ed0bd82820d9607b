package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// AdminService implements the moderation operations exposed to admins
// through the chat bot.
type AdminService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	dir    directory.Client
	logger logging.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, dir directory.Client, logger logging.Logger) *AdminService {
	return &AdminService{db: db, repos: m, dir: dir, logger: logger.With("module", "admin")}
}

// Ban refuses further service to a chat identity. If the identity owns a
// directory account, the account is deleted first; a directory failure
// aborts the ban so the two systems do not drift apart.
func (s *AdminService) Ban(ctx context.Context, telegramID, adminID int64, reason string) (*models.BannedUser, error) {
	username := ""
	link, err := s.repos.Links(s.db).Get(ctx, telegramID)
	if err == nil {
		username = link.Username
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if username != "" {
		if err := s.dir.DeleteAccount(ctx, username); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("delete directory account: %w", err)
		}
	}

	b := &models.BannedUser{
		TelegramID: telegramID,
		Username:   username,
		BannedAt:   time.Now().UTC(),
		BannedBy:   adminID,
		Reason:     reason,
	}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Bans(tx).Upsert(ctx, b); err != nil {
			return err
		}
		_, err := s.repos.Links(tx).Delete(ctx, telegramID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user banned",
		"telegram_id", telegramID, "username", username, "admin_id", adminID, "reason", reason)
	return b, nil
}

// Unban lifts a ban. Unknown identities yield common.ErrorNotFound.
func (s *AdminService) Unban(ctx context.Context, telegramID, adminID int64) error {
	deleted, err := s.repos.Bans(s.db).Delete(ctx, telegramID)
	if err != nil {
		return err
	}
	if !deleted {
		return common.ErrorNotFound
	}

	s.logger.Info(ctx, "user unbanned", "telegram_id", telegramID, "admin_id", adminID)
	return nil
}

// ListPending returns the chat-bot registrations awaiting a decision.
func (s *AdminService) ListPending(ctx context.Context) ([]*models.PendingTelegramRegistration, error) {
	return s.repos.Pendings(s.db).ListTelegram(ctx)
}

// ListLinks returns every chat-identity to directory-account link.
func (s *AdminService) ListLinks(ctx context.Context) ([]*models.AccountLink, error) {
	return s.repos.Links(s.db).List(ctx)
}

// ListBans returns every active ban.
func (s *AdminService) ListBans(ctx context.Context) ([]*models.BannedUser, error) {
	return s.repos.Bans(s.db).List(ctx)
}

// ListDirectoryAccounts returns every account that currently exists on
// the directory.
func (s *AdminService) ListDirectoryAccounts(ctx context.Context) ([]directory.Account, error) {
	return s.dir.ListAccounts(ctx)
}

// DeleteDirectoryAccount removes an account from the directory and drops
// the local link if one exists. The owning chat identity is not banned;
// use Ban for that.
func (s *AdminService) DeleteDirectoryAccount(ctx context.Context, username string, adminID int64) error {
	if err := s.dir.DeleteAccount(ctx, username); err != nil {
		return err
	}

	link, err := s.repos.Links(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.repos.Links(s.db).Delete(ctx, link.TelegramID); err != nil {
		return err
	}

	s.logger.Info(ctx, "directory account deleted",
		"username", username, "telegram_id", link.TelegramID, "admin_id", adminID)
	return nil
}
