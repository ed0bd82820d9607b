package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/cryptox"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/migrations"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
)

const testAdminID int64 = 999

// fakeDirectory is an in-memory directory.Client for service tests.
type fakeDirectory struct {
	mu       sync.Mutex
	accounts map[string]directory.Account

	createErr error
	deleteErr error
	listErr   error
}

func newFakeDirectory(usernames ...string) *fakeDirectory {
	d := &fakeDirectory{accounts: make(map[string]directory.Account)}
	for _, u := range usernames {
		d.accounts[u] = directory.Account{Username: u}
	}
	return d
}

func (d *fakeDirectory) AccountExists(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return false, d.listErr
	}
	_, ok := d.accounts[username]
	return ok, nil
}

func (d *fakeDirectory) ListAccounts(ctx context.Context) ([]directory.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]directory.Account, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (d *fakeDirectory) CreateAccount(ctx context.Context, acc directory.Account, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	if _, ok := d.accounts[acc.Username]; ok {
		return common.ErrUsernameTaken
	}
	d.accounts[acc.Username] = acc
	return nil
}

func (d *fakeDirectory) DeleteAccount(ctx context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		return d.deleteErr
	}
	if _, ok := d.accounts[username]; !ok {
		return common.ErrorNotFound
	}
	delete(d.accounts, username)
	return nil
}

func (d *fakeDirectory) add(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[username] = directory.Account{Username: username}
}

func (d *fakeDirectory) has(username string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.accounts[username]
	return ok
}

func (d *fakeDirectory) get(username string) (directory.Account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[username]
	return a, ok
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	adminTexts []string
	userTexts  map[int64][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{userTexts: make(map[int64][]string)}
}

func (n *recordingNotifier) NotifyAdmins(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.adminTexts = append(n.adminTexts, text)
}

func (n *recordingNotifier) NotifyUser(ctx context.Context, telegramID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.userTexts[telegramID] = append(n.userTexts[telegramID], text)
}

// env wires the full service stack over a fresh in-memory database.
type env struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	dir      *fakeDirectory
	notifier *recordingNotifier
	sealer   *cryptox.Sealer
	cfg      *config.Config

	intake    *IntakeService
	tokens    *TokenService
	provision *ProvisionService
	approval  *ApprovalService
	admin     *AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AdminIDs = []int64{testAdminID}
	cfg.PublicHost = "voice.example.com"
	cfg.ServerName = "Example Voice"
	cfg.WebPublicURL = "http://reg.example.com"

	e := &env{
		db:       db,
		repos:    repomanager.NewSQLiteRepositoryManager(),
		dir:      newFakeDirectory(),
		notifier: newRecordingNotifier(),
		sealer:   cryptox.NewSealer("", nil),
		cfg:      cfg,
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	e.intake = NewIntakeService(db, e.repos, e.dir, e.sealer, cfg, logger)
	e.tokens = NewTokenService(db, e.repos, cfg, logger)
	e.provision = NewProvisionService(db, e.repos, e.dir, e.sealer, e.tokens, e.notifier, t.TempDir(), cfg, logger)
	e.approval = NewApprovalService(db, e.repos, e.provision, logger)
	e.admin = NewAdminService(db, e.repos, e.dir, logger)
	return e
}

func chatSubmission(telegramID int64, username string) ChatSubmission {
	return ChatSubmission{
		TelegramID: telegramID,
		Username:   username,
		Password:   "secret-pw",
		Nickname:   username + " nick",
		SourceInfo: "lang=en;tg_username=" + username,
	}
}
