package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/talkreg/regbot/internal/assets"
	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/cryptox"
	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

// ProvisionedAccount is the outcome of a successful provisioning: the
// account plus the connection artifacts handed to the user. DownloadToken
// and DownloadURL are empty when asset generation failed; the account is
// still usable. The Zip fields are set only when a client template
// directory is configured and the bundle was built.
type ProvisionedAccount struct {
	Username      string
	Nickname      string
	TTLink        string
	TTFilePath    string
	TTFileName    string
	DownloadToken string
	DownloadURL   string

	ZipFilePath      string
	ZipFileName      string
	ZipDownloadToken string
	ZipDownloadURL   string
}

// ProvisionService creates directory accounts from pending registrations
// and finalizes the local bookkeeping.
type ProvisionService struct {
	db         *sql.DB
	repos      repomanager.RepositoryManager
	dir        directory.Client
	sealer     *cryptox.Sealer
	tokens     *TokenService
	notifier   Notifier
	payloadDir string
	cfg        *config.Config
	logger     logging.Logger
}

// NewProvisionService constructs a ProvisionService. payloadDir must exist.
func NewProvisionService(db *sql.DB, m repomanager.RepositoryManager, dir directory.Client,
	sealer *cryptox.Sealer, tokens *TokenService, notifier Notifier, payloadDir string,
	cfg *config.Config, logger logging.Logger) *ProvisionService {
	return &ProvisionService{
		db:         db,
		repos:      m,
		dir:        dir,
		sealer:     sealer,
		tokens:     tokens,
		notifier:   notifier,
		payloadDir: payloadDir,
		cfg:        cfg,
		logger:     logger.With("module", "provision"),
	}
}

// ProvisionTelegram provisions a chat-bot registration that has not been
// claimed yet: the pending row is consumed in the same transaction that
// records the account link.
func (s *ProvisionService) ProvisionTelegram(ctx context.Context, p *models.PendingTelegramRegistration, accType models.AccountType) (*ProvisionedAccount, error) {
	return s.provisionTelegram(ctx, p, accType, true)
}

// ProvisionClaimedTelegram provisions a registration whose pending row was
// already consumed by the caller (the approval flow claims it first so
// that only one admin wins).
func (s *ProvisionService) ProvisionClaimedTelegram(ctx context.Context, p *models.PendingTelegramRegistration, accType models.AccountType) (*ProvisionedAccount, error) {
	return s.provisionTelegram(ctx, p, accType, false)
}

func (s *ProvisionService) provisionTelegram(ctx context.Context, p *models.PendingTelegramRegistration, accType models.AccountType, claimPending bool) (*ProvisionedAccount, error) {
	password, err := s.sealer.Open(p.Password)
	if err != nil {
		return nil, fmt.Errorf("open sealed password: %w", err)
	}

	source := p.SourceInfo
	if source == "" {
		source = fmt.Sprintf("telegram id %d", p.TelegramID)
	}
	acc := directory.Account{
		Username: p.Username,
		Type:     accType,
		Rights:   directory.RightsMask(s.cfg.DirectoryUserRights),
		Note:     accountNote(source, p.Nickname),
	}

	if err := s.createDirectoryAccount(ctx, acc, password, claimPending, func(ctx context.Context) {
		if _, derr := s.repos.Pendings(s.db).DeleteTelegram(ctx, p.RequestKey); derr != nil {
			s.logger.Error(ctx, "failed to drop rejected pending registration", "error", derr)
		}
	}); err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if claimPending {
			deleted, err := s.repos.Pendings(tx).DeleteTelegram(ctx, p.RequestKey)
			if err != nil {
				return err
			}
			if !deleted {
				return common.ErrAlreadyHandled
			}
		}
		return s.repos.Links(tx).Upsert(ctx, p.TelegramID, p.Username)
	})
	if err != nil {
		return nil, s.finalizeError(ctx, p.Username, err)
	}

	s.logger.Info(ctx, "account provisioned",
		"username", p.Username, "telegram_id", p.TelegramID, "account_type", string(accType))
	return s.buildAssets(ctx, p.Username, password, p.Nickname), nil
}

// ProvisionWeb provisions a web-form registration. The pending row is
// consumed and the registrant's address recorded in one transaction.
func (s *ProvisionService) ProvisionWeb(ctx context.Context, p *models.PendingWebRegistration) (*ProvisionedAccount, error) {
	password, err := s.sealer.Open(p.Password)
	if err != nil {
		return nil, fmt.Errorf("open sealed password: %w", err)
	}

	source := "web"
	if p.IPAddress != "" {
		source = "web ip " + p.IPAddress
	}
	acc := directory.Account{
		Username: p.Username,
		Type:     models.AccountTypeDefault,
		Rights:   directory.RightsMask(s.cfg.DirectoryUserRights),
		Note:     accountNote(source, p.Nickname),
	}

	if err := s.createDirectoryAccount(ctx, acc, password, true, func(ctx context.Context) {
		if _, derr := s.repos.Pendings(s.db).DeleteWeb(ctx, p.RequestKey); derr != nil {
			s.logger.Error(ctx, "failed to drop rejected pending registration", "error", derr)
		}
	}); err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		deleted, err := s.repos.Pendings(tx).DeleteWeb(ctx, p.RequestKey)
		if err != nil {
			return err
		}
		if !deleted {
			return common.ErrAlreadyHandled
		}
		if s.cfg.OneAccountPerIP && p.IPAddress != "" {
			return s.repos.IPs(tx).Create(ctx, &models.RegisteredIP{
				IPAddress:    p.IPAddress,
				Username:     p.Username,
				RegisteredAt: p.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.finalizeError(ctx, p.Username, err)
	}

	s.logger.Info(ctx, "account provisioned", "username", p.Username, "ip", p.IPAddress)
	return s.buildAssets(ctx, p.Username, password, p.Nickname), nil
}

// accountNote records provenance on the directory account itself, so an
// operator inspecting the server can tell where an account came from.
func accountNote(source, nickname string) string {
	return fmt.Sprintf("Registered via regbot (%s), nick=%s", source, nickname)
}

// createDirectoryAccount runs the directory create and classifies its
// failure modes. A duplicate username is a definite rejection: the pending
// row is dropped via dropPending. Anything else leaves the pending row in
// place so the request can be retried.
func (s *ProvisionService) createDirectoryAccount(ctx context.Context, acc directory.Account,
	password string, dropOnDuplicate bool, dropPending func(ctx context.Context)) error {

	err := s.dir.CreateAccount(ctx, acc, password)
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrUsernameTaken) {
		if dropOnDuplicate {
			dropPending(ctx)
		}
		return common.ErrUsernameTaken
	}
	return fmt.Errorf("%w: %v", common.ErrProvisionFailed, err)
}

// finalizeError maps a failed local finalize after a successful directory
// create. This is the one place the system can become inconsistent, so
// admins are alerted.
func (s *ProvisionService) finalizeError(ctx context.Context, username string, err error) error {
	if errors.Is(err, common.ErrAlreadyHandled) {
		return err
	}
	s.logger.Error(ctx, "directory account created but local finalize failed",
		"username", username, "error", err)
	s.notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Inconsistent state: directory account %q was created but could not be recorded locally. Manual cleanup needed.", username))
	return fmt.Errorf("%w: %v", common.ErrInconsistentState, err)
}

// buildAssets renders the connection artifacts and mints a download token
// for the .tt file. Asset failures never fail the provisioning; the
// returned account simply lacks the download fields.
func (s *ProvisionService) buildAssets(ctx context.Context, username, password, nickname string) *ProvisionedAccount {
	info := assets.ConnectionInfo{
		ServerName:      s.cfg.ServerName,
		Host:            s.cfg.PublicHost,
		TCPPort:         s.cfg.DirectoryTCPPort,
		UDPPort:         s.cfg.DirectoryUDPPort,
		Encrypted:       s.cfg.DirectoryEncrypted,
		Username:        username,
		Password:        password,
		Nickname:        nickname,
		Channel:         s.cfg.JoinChannel,
		ChannelPassword: s.cfg.JoinChannelPassword,
	}

	acc := &ProvisionedAccount{
		Username: username,
		Nickname: nickname,
		TTLink:   assets.TTLink(info),
	}

	name := assets.FileName(username)
	content := assets.TTFile(info)
	prefix, err := common.MakeRandHexString(8)
	if err != nil {
		s.logger.Error(ctx, "failed to build connection file", "error", err)
		return acc
	}
	path := filepath.Join(s.payloadDir, prefix+"-"+name)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		s.logger.Error(ctx, "failed to write connection file", "error", err)
		return acc
	}

	token, err := s.tokens.IssueDownload(ctx, path, name, "ttfile")
	if err != nil {
		s.logger.Error(ctx, "failed to issue download token", "error", err)
		_ = os.Remove(path)
		return acc
	}

	acc.TTFilePath = path
	acc.TTFileName = name
	acc.DownloadToken = token.Token
	if s.cfg.WebEnabled {
		acc.DownloadURL = s.downloadURL(token.Token)
	}

	s.buildClientBundle(ctx, acc, prefix, name, content)
	return acc
}

// buildClientBundle zips the configured client template together with the
// connection file. Like the other assets, a failed bundle never fails the
// provisioning.
func (s *ProvisionService) buildClientBundle(ctx context.Context, acc *ProvisionedAccount, prefix, ttName, ttContent string) {
	if s.cfg.ClientTemplateDir == "" {
		return
	}

	zipName := assets.ClientZipName(acc.Username)
	zipPath := filepath.Join(s.payloadDir, prefix+"-"+zipName)
	if err := assets.WriteClientZip(s.cfg.ClientTemplateDir, zipPath, ttName, ttContent); err != nil {
		s.logger.Error(ctx, "failed to build client bundle", "error", err)
		return
	}

	token, err := s.tokens.IssueDownload(ctx, zipPath, zipName, "clientzip")
	if err != nil {
		s.logger.Error(ctx, "failed to issue client bundle token", "error", err)
		_ = os.Remove(zipPath)
		return
	}

	acc.ZipFilePath = zipPath
	acc.ZipFileName = zipName
	acc.ZipDownloadToken = token.Token
	if s.cfg.WebEnabled {
		acc.ZipDownloadURL = s.downloadURL(token.Token)
	}
}

func (s *ProvisionService) downloadURL(token string) string {
	return strings.TrimRight(s.cfg.WebPublicURL, "/") + "/download/" + token
}
