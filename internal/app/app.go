// Package app initializes and runs the registration service: it opens the
// database, wires the services and intake channels, and handles graceful
// shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/cryptox"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/filex"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
	"github.com/talkreg/regbot/internal/services"
	"github.com/talkreg/regbot/internal/tgbot"
	"github.com/talkreg/regbot/internal/web"
)

// sealSaltKey is the meta-table key of the per-database key-derivation salt.
const sealSaltKey = "seal_salt"

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	bot     *tgbot.Bot
	web     *web.Server
	banSync *services.BanSyncWorker
	cleanup *services.CleanupWorker
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := repomanager.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewSQLiteRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	sealer, err := buildSealer(ctx, db, repos, cfg, logger)
	if err != nil {
		return nil, err
	}

	payloadDir, err := filex.EnsureDir(cfg.PayloadDir)
	if err != nil {
		return nil, fmt.Errorf("payload dir error: %w", err)
	}

	dir := directory.NewTeamTalkClient(directory.TeamTalkConfig{
		Host:       cfg.DirectoryHost,
		Port:       cfg.DirectoryTCPPort,
		UseTLS:     cfg.DirectoryEncrypted,
		Username:   cfg.DirectoryUsername,
		Password:   cfg.DirectoryPassword,
		Nickname:   cfg.DirectoryNickname,
		ClientName: cfg.DirectoryClientName,
		Timeout:    cfg.DirectoryTimeout,
	}, logger)

	app := &App{config: cfg, logger: logger, db: db}

	// The bot doubles as the Notifier the services are built with, so it
	// is created first and gets the services attached afterwards.
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.BotToken != "" {
		bot, err := tgbot.New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("bot init error: %w", err)
		}
		app.bot = bot
		notifier = bot
	} else {
		logger.Warn(ctx, "no bot token configured, chat-bot channel disabled")
	}

	intake := services.NewIntakeService(db, repos, dir, sealer, cfg, logger)
	tokens := services.NewTokenService(db, repos, cfg, logger)
	provision := services.NewProvisionService(db, repos, dir, sealer, tokens, notifier, payloadDir, cfg, logger)
	approval := services.NewApprovalService(db, repos, provision, logger)
	admin := services.NewAdminService(db, repos, dir, logger)

	if app.bot != nil {
		app.bot.Attach(intake, approval, admin, tokens, provision)
	}
	if cfg.WebEnabled {
		app.web = web.NewServer(db, intake, provision, tokens, cfg, logger)
	}

	app.banSync = services.NewBanSyncWorker(db, repos, dir, notifier, cfg, logger)
	app.cleanup = services.NewCleanupWorker(db, repos, payloadDir, cfg, logger)

	return app, nil
}

// buildSealer loads or creates the per-database salt and derives the seal
// key from the configured secret.
func buildSealer(ctx context.Context, db *sql.DB, repos repomanager.RepositoryManager,
	cfg *config.Config, logger logging.Logger) (*cryptox.Sealer, error) {

	if cfg.SealSecret == "" {
		logger.Warn(ctx, "no seal secret configured, pending passwords are stored in cleartext")
		return cryptox.NewSealer("", nil), nil
	}

	salt, err := repos.Meta(db).Get(ctx, sealSaltKey)
	if err != nil {
		return nil, fmt.Errorf("load seal salt: %w", err)
	}
	if salt == nil {
		salt = common.GenerateRandByteArray(16)
		if err := repos.Meta(db).Set(ctx, sealSaltKey, salt); err != nil {
			return nil, fmt.Errorf("store seal salt: %w", err)
		}
	}
	return cryptox.NewSealer(cfg.SealSecret, salt), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting registration service")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if app.bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.bot.Run(ctx)
		}()
	}

	if app.web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.logger.Info(ctx, "web server listening", "addr", app.config.WebAddr)
			if err := app.web.Run(ctx); err != nil {
				app.logger.Error(ctx, "web server error", "error", err)
				cancelFunc()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.banSync.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.cleanup.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close database", "error", err)
	}
	app.logger.Info(ctx, "stopped")
}
