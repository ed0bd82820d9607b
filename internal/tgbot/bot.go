// Package tgbot is the chat-bot intake channel. It drives the
// registration dialogue, exposes admin commands, and delivers the
// approve/reject decision buttons.
package tgbot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/services"
)

// sender is the outbound half of the Telegram API used by the handlers.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the registration dialogue state.
type Bot struct {
	api    *tgbotapi.BotAPI
	out    sender
	cfg    *config.Config
	logger logging.Logger

	intake    *services.IntakeService
	approval  *services.ApprovalService
	admin     *services.AdminService
	tokens    *services.TokenService
	provision *services.ProvisionService

	mu       sync.Mutex
	sessions map[int64]*session
}

// New connects to the Telegram API. Services are attached separately with
// Attach because the bot itself is the Notifier they are built with.
func New(cfg *config.Config, logger logging.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}

	return &Bot{
		api:      api,
		out:      api,
		cfg:      cfg,
		logger:   logger.With("module", "tgbot"),
		sessions: make(map[int64]*session),
	}, nil
}

// Attach binds the services the handlers dispatch to.
func (b *Bot) Attach(intake *services.IntakeService, approval *services.ApprovalService,
	admin *services.AdminService, tokens *services.TokenService, provision *services.ProvisionService) {
	b.intake = intake
	b.approval = approval
	b.admin = admin
	b.tokens = tokens
	b.provision = provision
}

// Run consumes updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info(ctx, "bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			// One goroutine per update: a slow directory call in one
			// chat must not stall the other chats.
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "panic in update handler", "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleDialogInput(ctx, update.Message)
	}
}

// NotifyAdmins implements services.Notifier.
func (b *Bot) NotifyAdmins(ctx context.Context, text string) {
	for _, id := range b.cfg.AdminIDs {
		b.send(ctx, id, text)
	}
}

// NotifyUser implements services.Notifier.
func (b *Bot) NotifyUser(ctx context.Context, telegramID int64, text string) {
	b.send(ctx, telegramID, text)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error(ctx, "failed to send message", "chat_id", chatID, "error", err)
	}
}

// deeplinkURL renders the invitation link for a minted token.
func (b *Bot) deeplinkURL(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", b.api.Self.UserName, token)
}
