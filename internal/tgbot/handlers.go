package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/models"
)

const (
	actionApprove      = "approve"
	actionApproveAdmin = "approveadm"
	actionReject       = "reject"
)

// encodeCallback packs a decision button payload. Telegram limits callback
// data to 64 bytes, which a UUID request key plus action fits.
func encodeCallback(action, requestKey string) string {
	return action + ":" + requestKey
}

func parseCallback(data string) (action, requestKey string, ok bool) {
	action, requestKey, ok = strings.Cut(data, ":")
	if !ok || action == "" || requestKey == "" {
		return "", "", false
	}
	return action, requestKey, true
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "register":
		b.startDialog(ctx, chatID, false)
	case "cancel":
		b.cancelDialog(ctx, chatID)
	case "help":
		b.cmdHelp(ctx, msg)
	case "pending":
		b.adminOnly(ctx, msg, b.cmdPending)
	case "accounts":
		b.adminOnly(ctx, msg, b.cmdAccounts)
	case "bans":
		b.adminOnly(ctx, msg, b.cmdBans)
	case "server":
		b.adminOnly(ctx, msg, b.cmdServerAccounts)
	case "delaccount":
		b.adminOnly(ctx, msg, b.cmdDeleteAccount)
	case "ban":
		b.adminOnly(ctx, msg, b.cmdBan)
	case "unban":
		b.adminOnly(ctx, msg, b.cmdUnban)
	case "invite":
		b.adminOnly(ctx, msg, b.cmdInvite)
	default:
		b.send(ctx, chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) adminOnly(ctx context.Context, msg *tgbotapi.Message, fn func(context.Context, *tgbotapi.Message)) {
	if !b.cfg.IsAdmin(msg.From.ID) {
		b.send(ctx, msg.Chat.ID, "Unknown command. Try /help.")
		return
	}
	fn(ctx, msg)
}

// cmdStart greets the user. A payload is a deeplink invitation token; a
// valid one opens the registration dialogue even while registration is
// closed.
func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	payload := strings.TrimSpace(msg.CommandArguments())
	if payload == "" {
		b.send(ctx, chatID, "Welcome! Use /register to create an account on the voice server, or /help for the command list.")
		return
	}

	if !b.cfg.DeeplinksEnabled {
		b.send(ctx, chatID, "Invitation links are disabled.")
		return
	}

	_, err := b.tokens.RedeemDeeplink(ctx, payload)
	switch {
	case err == nil:
		b.startDialog(ctx, chatID, true)
	case errors.Is(err, common.ErrTokenUsed):
		b.send(ctx, chatID, "This invitation link was already used.")
	case errors.Is(err, common.ErrTokenExpired):
		b.send(ctx, chatID, "This invitation link has expired.")
	case errors.Is(err, common.ErrorNotFound):
		b.send(ctx, chatID, "This invitation link is not valid.")
	default:
		b.logger.Error(ctx, "failed to redeem deeplink", "error", err)
		b.send(ctx, chatID, "Something went wrong, please try again later.")
	}
}

func (b *Bot) cmdHelp(ctx context.Context, msg *tgbotapi.Message) {
	var sb strings.Builder
	sb.WriteString("/register - create an account\n/cancel - abort the current registration\n")
	if b.cfg.IsAdmin(msg.From.ID) {
		sb.WriteString("\nAdmin commands:\n")
		sb.WriteString("/pending - list requests waiting for approval\n")
		sb.WriteString("/accounts - list linked accounts\n")
		sb.WriteString("/bans - list banned users\n")
		sb.WriteString("/server - list accounts on the voice server\n")
		sb.WriteString("/delaccount <username> - delete an account from the voice server\n")
		sb.WriteString("/ban <telegram id> [reason] - ban a user and delete their account\n")
		sb.WriteString("/unban <telegram id> - lift a ban\n")
		sb.WriteString("/invite - mint a single-use invitation link\n")
	}
	b.send(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) cmdPending(ctx context.Context, msg *tgbotapi.Message) {
	pending, err := b.admin.ListPending(ctx)
	if err != nil {
		b.logger.Error(ctx, "failed to list pending requests", "error", err)
		b.send(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}
	if len(pending) == 0 {
		b.send(ctx, msg.Chat.ID, "No requests are waiting.")
		return
	}
	for _, p := range pending {
		b.notifyAdminRequest(ctx, msg.Chat.ID, p)
	}
}

func (b *Bot) notifyAdminRequest(ctx context.Context, chatID int64, p *models.PendingTelegramRegistration) {
	text := fmt.Sprintf("Registration request\nUsername: %s\nNickname: %s\nTelegram ID: %d\nSubmitted: %s\n%s",
		p.Username, p.Nickname, p.TelegramID, p.CreatedAt.Format("2006-01-02 15:04"), p.SourceInfo)

	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", encodeCallback(actionApprove, p.RequestKey)),
			tgbotapi.NewInlineKeyboardButtonData("Approve as admin", encodeCallback(actionApproveAdmin, p.RequestKey)),
			tgbotapi.NewInlineKeyboardButtonData("Reject", encodeCallback(actionReject, p.RequestKey)),
		),
	)
	if _, err := b.out.Send(m); err != nil {
		b.logger.Error(ctx, "failed to send request card", "error", err)
	}
}

func (b *Bot) cmdAccounts(ctx context.Context, msg *tgbotapi.Message) {
	links, err := b.admin.ListLinks(ctx)
	if err != nil {
		b.logger.Error(ctx, "failed to list links", "error", err)
		b.send(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}
	if len(links) == 0 {
		b.send(ctx, msg.Chat.ID, "No linked accounts.")
		return
	}
	var sb strings.Builder
	for _, l := range links {
		fmt.Fprintf(&sb, "%s (telegram id %d)\n", l.Username, l.TelegramID)
	}
	b.send(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) cmdBans(ctx context.Context, msg *tgbotapi.Message) {
	bans, err := b.admin.ListBans(ctx)
	if err != nil {
		b.logger.Error(ctx, "failed to list bans", "error", err)
		b.send(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}
	if len(bans) == 0 {
		b.send(ctx, msg.Chat.ID, "No banned users.")
		return
	}
	var sb strings.Builder
	for _, ban := range bans {
		name := ban.Username
		if name == "" {
			name = "(never linked)"
		}
		fmt.Fprintf(&sb, "%d %s - %s (%s)\n", ban.TelegramID, name, ban.Reason, ban.BannedAt.Format("2006-01-02"))
	}
	b.send(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) cmdServerAccounts(ctx context.Context, msg *tgbotapi.Message) {
	accounts, err := b.admin.ListDirectoryAccounts(ctx)
	if err != nil {
		b.logger.Error(ctx, "failed to list directory accounts", "error", err)
		b.send(ctx, msg.Chat.ID, "The voice server could not be reached.")
		return
	}
	if len(accounts) == 0 {
		b.send(ctx, msg.Chat.ID, "The server has no accounts.")
		return
	}
	var sb strings.Builder
	for _, a := range accounts {
		if a.Type == models.AccountTypeAdmin {
			fmt.Fprintf(&sb, "%s (admin)\n", a.Username)
		} else {
			fmt.Fprintf(&sb, "%s\n", a.Username)
		}
	}
	b.send(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) cmdDeleteAccount(ctx context.Context, msg *tgbotapi.Message) {
	username := strings.TrimSpace(msg.CommandArguments())
	if username == "" {
		b.send(ctx, msg.Chat.ID, "Usage: /delaccount <username>")
		return
	}

	switch err := b.admin.DeleteDirectoryAccount(ctx, username, msg.From.ID); {
	case err == nil:
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("Deleted account %q.", username))
	case errors.Is(err, common.ErrorNotFound):
		b.send(ctx, msg.Chat.ID, "No such account on the server.")
	default:
		b.logger.Error(ctx, "failed to delete directory account", "username", username, "error", err)
		b.send(ctx, msg.Chat.ID, "The voice server could not be reached.")
	}
}

func (b *Bot) cmdBan(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.send(ctx, msg.Chat.ID, "Usage: /ban <telegram id> [reason]")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(ctx, msg.Chat.ID, "That does not look like a Telegram ID.")
		return
	}
	reason := strings.TrimSpace(strings.TrimPrefix(msg.CommandArguments(), args[0]))
	if reason == "" {
		reason = "Banned by administrator"
	}

	ban, err := b.admin.Ban(ctx, id, msg.From.ID, reason)
	if err != nil {
		b.logger.Error(ctx, "ban failed", "telegram_id", id, "error", err)
		b.send(ctx, msg.Chat.ID, "Ban failed: the voice server could not be reached.")
		return
	}
	if ban.Username != "" {
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("Banned %d and deleted account %q.", id, ban.Username))
	} else {
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("Banned %d.", id))
	}
}

func (b *Bot) cmdUnban(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.send(ctx, msg.Chat.ID, "Usage: /unban <telegram id>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(ctx, msg.Chat.ID, "That does not look like a Telegram ID.")
		return
	}

	switch err := b.admin.Unban(ctx, id, msg.From.ID); {
	case err == nil:
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("Unbanned %d. They can register again.", id))
	case errors.Is(err, common.ErrorNotFound):
		b.send(ctx, msg.Chat.ID, "That user is not banned.")
	default:
		b.logger.Error(ctx, "unban failed", "telegram_id", id, "error", err)
		b.send(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
	}
}

func (b *Bot) cmdInvite(ctx context.Context, msg *tgbotapi.Message) {
	if !b.cfg.DeeplinksEnabled {
		b.send(ctx, msg.Chat.ID, "Invitation links are disabled.")
		return
	}
	tok, err := b.tokens.IssueDeeplink(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error(ctx, "failed to issue deeplink", "error", err)
		b.send(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}
	b.send(ctx, msg.Chat.ID, fmt.Sprintf(
		"Single-use invitation (valid %s):\n%s", b.cfg.DeeplinkTTL, b.deeplinkURL(tok.Token)))
}

// auditDecision tells the other admins what one of them just decided.
func (b *Bot) auditDecision(ctx context.Context, adminID int64, what string) {
	text := fmt.Sprintf("Admin %d %s.", adminID, what)
	for _, id := range b.cfg.AdminIDs {
		if id == adminID {
			continue
		}
		b.send(ctx, id, text)
	}
}

// handleCallback resolves an approve/reject button press.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Always answer the query so the client stops its spinner.
	defer func() {
		if _, err := b.out.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Error(ctx, "failed to answer callback", "error", err)
		}
	}()

	if !b.cfg.IsAdmin(cq.From.ID) {
		return
	}
	action, requestKey, ok := parseCallback(cq.Data)
	if !ok {
		return
	}

	var outcome string
	switch action {
	case actionApprove, actionApproveAdmin:
		accType := models.AccountTypeDefault
		if action == actionApproveAdmin {
			accType = models.AccountTypeAdmin
		}
		outcome = b.decide(ctx, requestKey, cq.From.ID, accType)
	case actionReject:
		outcome = b.reject(ctx, requestKey, cq.From.ID)
	default:
		return
	}

	if cq.Message != nil {
		edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID,
			cq.Message.Text+"\n\n"+outcome)
		if _, err := b.out.Send(edit); err != nil {
			b.logger.Error(ctx, "failed to edit request card", "error", err)
		}
	}
}

// decide approves a request and reports the outcome line for the card.
func (b *Bot) decide(ctx context.Context, requestKey string, adminID int64, accType models.AccountType) string {
	p, acc, err := b.approval.Approve(ctx, requestKey, adminID, accType)
	switch {
	case err == nil:
		b.sendProvisioned(ctx, p.TelegramID, acc)
		b.auditDecision(ctx, adminID, fmt.Sprintf("approved registration %q", p.Username))
		return fmt.Sprintf("Approved, account %q created.", p.Username)
	case errors.Is(err, common.ErrAlreadyHandled):
		return "Already handled by another admin."
	case errors.Is(err, common.ErrUsernameTaken):
		if p != nil {
			b.NotifyUser(ctx, p.TelegramID, "Your registration was approved, but the username is already taken. Please register again with a different one.")
		}
		return "Username is taken on the server; the registrant was asked to retry."
	case errors.Is(err, common.ErrProvisionFailed):
		return "The voice server could not be reached; the request is still pending, try again later."
	default:
		b.logger.Error(ctx, "approval failed", "request_key", requestKey, "error", err)
		return "Approval failed, see logs."
	}
}

func (b *Bot) reject(ctx context.Context, requestKey string, adminID int64) string {
	p, err := b.approval.Reject(ctx, requestKey, adminID)
	switch {
	case err == nil:
		b.NotifyUser(ctx, p.TelegramID, "Your registration request was declined by an administrator.")
		b.auditDecision(ctx, adminID, fmt.Sprintf("rejected registration %q", p.Username))
		return "Rejected."
	case errors.Is(err, common.ErrAlreadyHandled):
		return "Already handled by another admin."
	default:
		b.logger.Error(ctx, "rejection failed", "request_key", requestKey, "error", err)
		return "Rejection failed, see logs."
	}
}
