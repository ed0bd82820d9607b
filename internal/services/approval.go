package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// ApprovalService resolves parked chat-bot registrations. Concurrent
// decisions on the same request are serialized by claiming the pending
// row first: whichever admin's delete lands wins, everyone else gets
// common.ErrAlreadyHandled.
type ApprovalService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	provision *ProvisionService
	logger    logging.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(db *sql.DB, m repomanager.RepositoryManager, provision *ProvisionService, logger logging.Logger) *ApprovalService {
	return &ApprovalService{db: db, repos: m, provision: provision, logger: logger.With("module", "approval")}
}

// Approve claims the pending registration and provisions it. On a
// retryable provisioning failure the claim is rolled back by re-inserting
// the pending row, so the admin can try again later. The returned pending
// registration is non-nil whenever the request was found, even on error,
// so callers can notify the registrant.
func (s *ApprovalService) Approve(ctx context.Context, requestKey string, adminID int64, accType models.AccountType) (*models.PendingTelegramRegistration, *ProvisionedAccount, error) {
	p, err := s.repos.Pendings(s.db).GetTelegram(ctx, requestKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrAlreadyHandled
		}
		return nil, nil, err
	}

	claimed, err := s.repos.Pendings(s.db).DeleteTelegram(ctx, requestKey)
	if err != nil {
		return p, nil, err
	}
	if !claimed {
		return p, nil, common.ErrAlreadyHandled
	}

	acc, err := s.provision.ProvisionClaimedTelegram(ctx, p, accType)
	if err != nil {
		if errors.Is(err, common.ErrProvisionFailed) {
			// Retryable failure: put the request back for another attempt.
			if cerr := s.repos.Pendings(s.db).CreateTelegram(ctx, p); cerr != nil {
				s.logger.Error(ctx, "failed to restore pending registration after provisioning failure",
					"request_key", requestKey, "error", cerr)
			}
		}
		return p, nil, err
	}

	s.logger.Info(ctx, "registration approved",
		"request_key", requestKey, "username", p.Username, "admin_id", adminID)
	return p, acc, nil
}

// Reject claims and discards the pending registration. Like Approve, the
// first admin to act wins.
func (s *ApprovalService) Reject(ctx context.Context, requestKey string, adminID int64) (*models.PendingTelegramRegistration, error) {
	p, err := s.repos.Pendings(s.db).GetTelegram(ctx, requestKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAlreadyHandled
		}
		return nil, err
	}

	deleted, err := s.repos.Pendings(s.db).DeleteTelegram(ctx, requestKey)
	if err != nil {
		return p, err
	}
	if !deleted {
		return p, common.ErrAlreadyHandled
	}

	s.logger.Info(ctx, "registration rejected",
		"request_key", requestKey, "username", p.Username, "admin_id", adminID)
	return p, nil
}
