package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/cryptox"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

const (
	maxUsernameLen = 32
	maxPasswordLen = 64
)

// Decision tells the caller what happens to a submission next.
type Decision int

const (
	// DecisionAwaitApproval means the request was parked for an admin.
	DecisionAwaitApproval Decision = iota
	// DecisionProvision means the caller should provision immediately.
	DecisionProvision
)

// ChatSubmission is a registration request arriving through the chat bot.
type ChatSubmission struct {
	TelegramID int64
	Username   string
	Password   string
	Nickname   string
	SourceInfo string
	// ViaInvite marks submissions that redeemed a deeplink token; they
	// bypass the public-registration switch.
	ViaInvite bool
}

// WebSubmission is a registration request arriving through the web form.
type WebSubmission struct {
	Username  string
	Password  string
	Nickname  string
	IPAddress string
	UserAgent string
}

// IntakeService validates submissions and records them as pending
// registrations.
type IntakeService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	dir    directory.Client
	sealer *cryptox.Sealer
	cfg    *config.Config
	logger logging.Logger
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(db *sql.DB, m repomanager.RepositoryManager, dir directory.Client,
	sealer *cryptox.Sealer, cfg *config.Config, logger logging.Logger) *IntakeService {
	return &IntakeService{
		db:     db,
		repos:  m,
		dir:    dir,
		sealer: sealer,
		cfg:    cfg,
		logger: logger.With("module", "intake"),
	}
}

// ValidateCredentials checks the username and password against the
// directory's constraints. Violations are wrapped around
// common.ErrValidation.
func ValidateCredentials(username, password string) error {
	if username == "" {
		return fmt.Errorf("%w: username is empty", common.ErrValidation)
	}
	if len(username) > maxUsernameLen {
		return fmt.Errorf("%w: username longer than %d characters", common.ErrValidation, maxUsernameLen)
	}
	for _, r := range username {
		if unicode.IsControl(r) || r == '"' {
			return fmt.Errorf("%w: username contains forbidden characters", common.ErrValidation)
		}
	}
	if password == "" {
		return fmt.Errorf("%w: password is empty", common.ErrValidation)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password longer than %d characters", common.ErrValidation, maxPasswordLen)
	}
	for _, r := range password {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: password contains forbidden characters", common.ErrValidation)
		}
	}
	return nil
}

// SubmitChat validates a chat-bot submission, stores it as a pending
// registration, and tells the caller whether to provision now or wait for
// an admin. Checks run cheapest-first; the directory round trip comes
// last.
func (s *IntakeService) SubmitChat(ctx context.Context, sub ChatSubmission) (*models.PendingTelegramRegistration, Decision, error) {
	username := strings.TrimSpace(sub.Username)
	nickname := strings.TrimSpace(sub.Nickname)
	if nickname == "" {
		nickname = username
	}

	if err := ValidateCredentials(username, sub.Password); err != nil {
		return nil, 0, err
	}

	isAdmin := s.cfg.IsAdmin(sub.TelegramID)

	if !s.cfg.RegistrationOpen && !isAdmin && !sub.ViaInvite {
		return nil, 0, common.ErrRegistrationClosed
	}

	banned, err := s.repos.Bans(s.db).IsBanned(ctx, sub.TelegramID)
	if err != nil {
		return nil, 0, err
	}
	if banned {
		return nil, 0, common.ErrBanned
	}

	if !isAdmin {
		if _, err := s.repos.Links(s.db).Get(ctx, sub.TelegramID); err == nil {
			return nil, 0, common.ErrAlreadyRegistered
		} else if !errors.Is(err, common.ErrorNotFound) {
			return nil, 0, err
		}

		hasPending, err := s.repos.Pendings(s.db).HasTelegramPending(ctx, sub.TelegramID)
		if err != nil {
			return nil, 0, err
		}
		if hasPending {
			return nil, 0, common.ErrRequestPending
		}
	}

	if err := s.usernameAvailable(ctx, username); err != nil {
		return nil, 0, err
	}

	sealed, err := s.sealer.Seal(sub.Password)
	if err != nil {
		return nil, 0, fmt.Errorf("seal password: %w", err)
	}

	p := &models.PendingTelegramRegistration{
		RequestKey: uuid.NewString(),
		TelegramID: sub.TelegramID,
		Username:   username,
		Password:   sealed,
		Nickname:   nickname,
		SourceInfo: sub.SourceInfo,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repos.Pendings(s.db).CreateTelegram(ctx, p); err != nil {
		return nil, 0, err
	}

	decision := DecisionProvision
	if s.cfg.ApprovalRequired && !isAdmin {
		decision = DecisionAwaitApproval
	}

	s.logger.Info(ctx, "chat registration accepted",
		"request_key", p.RequestKey, "username", username, "telegram_id", sub.TelegramID,
		"await_approval", decision == DecisionAwaitApproval)
	return p, decision, nil
}

// SubmitWeb validates a web-form submission and stores it as a pending
// registration. Web submissions are provisioned immediately by the
// caller; the pending row exists so a crash between directory create and
// local finalize is visible.
func (s *IntakeService) SubmitWeb(ctx context.Context, sub WebSubmission) (*models.PendingWebRegistration, error) {
	username := strings.TrimSpace(sub.Username)
	nickname := strings.TrimSpace(sub.Nickname)
	if nickname == "" {
		nickname = username
	}

	if err := ValidateCredentials(username, sub.Password); err != nil {
		return nil, err
	}

	if !s.cfg.RegistrationOpen {
		return nil, common.ErrRegistrationClosed
	}

	if s.cfg.OneAccountPerIP && sub.IPAddress != "" {
		exists, err := s.repos.IPs(s.db).Exists(ctx, sub.IPAddress)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, common.ErrIPAlreadyRegistered
		}
	}

	if err := s.usernameAvailable(ctx, username); err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(sub.Password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}

	p := &models.PendingWebRegistration{
		RequestKey: uuid.NewString(),
		Username:   username,
		Password:   sealed,
		Nickname:   nickname,
		IPAddress:  sub.IPAddress,
		UserAgent:  sub.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repos.Pendings(s.db).CreateWeb(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "web registration accepted",
		"request_key", p.RequestKey, "username", username, "ip", sub.IPAddress)
	return p, nil
}

// usernameAvailable rejects usernames claimed by a pending request or by
// an existing directory account.
func (s *IntakeService) usernameAvailable(ctx context.Context, username string) error {
	pending, err := s.repos.Pendings(s.db).UsernamePending(ctx, username)
	if err != nil {
		return err
	}
	if pending {
		return common.ErrUsernameTaken
	}

	exists, err := s.dir.AccountExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return common.ErrUsernameTaken
	}
	return nil
}
