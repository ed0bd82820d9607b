package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// TokenService issues and redeems single-use tokens: file-download grants
// and chat-bot invitation deeplinks.
type TokenService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cfg    *config.Config
	logger logging.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *TokenService {
	return &TokenService{db: db, repos: m, cfg: cfg, logger: logger.With("module", "tokens")}
}

// IssueDownload mints a download token for the file at filePath, valid for
// the configured download TTL.
func (s *TokenService) IssueDownload(ctx context.Context, filePath, originalName, kind string) (*models.DownloadToken, error) {
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &models.DownloadToken{
		Token:        token,
		FilePath:     filePath,
		OriginalName: originalName,
		Kind:         kind,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.DownloadTokenTTL),
	}
	if err := s.repos.Tokens(s.db).CreateDownload(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RedeemDownload burns a download token and returns it. Unknown, used, and
// expired tokens yield common.ErrorNotFound, common.ErrTokenUsed, and
// common.ErrTokenExpired respectively.
func (s *TokenService) RedeemDownload(ctx context.Context, token string) (*models.DownloadToken, error) {
	return s.repos.Tokens(s.db).RedeemDownload(ctx, token, time.Now().UTC())
}

// IssueDeeplink mints a single-use invitation token on behalf of adminID,
// valid for the configured deeplink TTL.
func (s *TokenService) IssueDeeplink(ctx context.Context, adminID int64) (*models.DeeplinkToken, error) {
	token, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &models.DeeplinkToken{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.DeeplinkTTL),
		IssuedBy:  adminID,
	}
	if err := s.repos.Tokens(s.db).CreateDeeplink(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "deeplink issued", "issued_by", adminID, "expires_at", t.ExpiresAt)
	return t, nil
}

// RedeemDeeplink burns an invitation token, with the same error contract
// as RedeemDownload.
func (s *TokenService) RedeemDeeplink(ctx context.Context, token string) (*models.DeeplinkToken, error) {
	return s.repos.Tokens(s.db).RedeemDeeplink(ctx, token, time.Now().UTC())
}
