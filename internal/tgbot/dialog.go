package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/models"
	"github.com/talkreg/regbot/internal/services"
)

// dialogStep is the position inside the registration dialogue.
type dialogStep int

const (
	stepUsername dialogStep = iota
	stepPassword
	stepNickname
)

// session holds the in-progress registration of one chat.
type session struct {
	step      dialogStep
	username  string
	password  string
	viaInvite bool
}

func (b *Bot) startDialog(ctx context.Context, chatID int64, viaInvite bool) {
	b.mu.Lock()
	b.sessions[chatID] = &session{step: stepUsername, viaInvite: viaInvite}
	b.mu.Unlock()

	b.send(ctx, chatID, "Let's set up your account. Send me the username you want. Use /cancel to abort.")
}

func (b *Bot) cancelDialog(ctx context.Context, chatID int64) {
	b.mu.Lock()
	_, active := b.sessions[chatID]
	delete(b.sessions, chatID)
	b.mu.Unlock()

	if active {
		b.send(ctx, chatID, "Registration canceled.")
	} else {
		b.send(ctx, chatID, "Nothing to cancel.")
	}
}

// handleDialogInput advances the dialogue by one step. Messages outside a
// dialogue get a pointer to /register.
func (b *Bot) handleDialogInput(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	b.mu.Lock()
	s, ok := b.sessions[chatID]
	b.mu.Unlock()
	if !ok {
		b.send(ctx, chatID, "Use /register to create an account or /help for the command list.")
		return
	}

	switch s.step {
	case stepUsername:
		if err := services.ValidateCredentials(text, "x"); err != nil {
			b.send(ctx, chatID, "That username won't work: "+userFacing(err)+" Try another one.")
			return
		}
		s.username = text
		s.step = stepPassword
		b.send(ctx, chatID, "Now send me the password for the account.")

	case stepPassword:
		if err := services.ValidateCredentials(s.username, text); err != nil {
			b.send(ctx, chatID, "That password won't work: "+userFacing(err)+" Try another one.")
			return
		}
		s.password = text
		s.step = stepNickname
		b.send(ctx, chatID, "Finally, send a nickname, or \"-\" to use the username.")

	case stepNickname:
		nickname := text
		if nickname == "-" {
			nickname = ""
		}
		b.mu.Lock()
		delete(b.sessions, chatID)
		b.mu.Unlock()
		b.finishDialog(ctx, msg, s, nickname)
	}
}

// finishDialog submits the collected registration and either provisions it
// or parks it for approval.
func (b *Bot) finishDialog(ctx context.Context, msg *tgbotapi.Message, s *session, nickname string) {
	chatID := msg.Chat.ID

	sub := services.ChatSubmission{
		TelegramID: msg.From.ID,
		Username:   s.username,
		Password:   s.password,
		Nickname:   nickname,
		SourceInfo: buildSourceInfo(msg.From),
		ViaInvite:  s.viaInvite,
	}

	p, decision, err := b.intake.SubmitChat(ctx, sub)
	if err != nil {
		b.send(ctx, chatID, userFacing(err))
		return
	}

	if decision == services.DecisionAwaitApproval {
		b.send(ctx, chatID, "Your registration was submitted and is waiting for an administrator to approve it. I'll message you once it's decided.")
		b.notifyAdminsOfRequest(ctx, p)
		return
	}

	accType := models.AccountTypeDefault
	if b.cfg.IsAdmin(msg.From.ID) {
		accType = models.AccountTypeAdmin
	}

	acc, err := b.provision.ProvisionTelegram(ctx, p, accType)
	if err != nil {
		b.send(ctx, chatID, userFacing(err))
		return
	}
	b.sendProvisioned(ctx, chatID, acc)
}

// notifyAdminsOfRequest sends every admin the request with decision buttons.
func (b *Bot) notifyAdminsOfRequest(ctx context.Context, p *models.PendingTelegramRegistration) {
	for _, id := range b.cfg.AdminIDs {
		b.notifyAdminRequest(ctx, id, p)
	}
}

// sendProvisioned delivers the connection artifacts to the new user: the
// tt:// link, the .tt file, and the client bundle when one was built.
func (b *Bot) sendProvisioned(ctx context.Context, chatID int64, acc *services.ProvisionedAccount) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your account %q is ready.\n\nConnection link:\n%s\n", acc.Username, acc.TTLink)
	if acc.DownloadURL != "" {
		fmt.Fprintf(&sb, "\nConnection file (single download, expires soon):\n%s\n", acc.DownloadURL)
	}
	b.send(ctx, chatID, sb.String())

	if acc.TTFilePath != "" {
		b.sendDocument(ctx, chatID, acc.TTFilePath)
	}
	if acc.ZipFilePath != "" {
		b.send(ctx, chatID, "Here is a ready-to-run client with your account already set up:")
		b.sendDocument(ctx, chatID, acc.ZipFilePath)
	}
}

func (b *Bot) sendDocument(ctx context.Context, chatID int64, path string) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if _, err := b.out.Send(doc); err != nil {
		b.logger.Error(ctx, "failed to send document", "chat_id", chatID, "path", path, "error", err)
	}
}

// buildSourceInfo condenses the Telegram profile into one line stored with
// the request, so admins can judge who is asking.
func buildSourceInfo(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	fullname := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return fmt.Sprintf("lang=%s;tg_username=%s;fullname=%s", u.LanguageCode, u.UserName, fullname)
}

// userFacing maps service errors to messages safe to show the registrant.
func userFacing(err error) string {
	switch {
	case errors.Is(err, common.ErrValidation):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	case errors.Is(err, common.ErrRegistrationClosed):
		return "Registration is currently closed. Ask an administrator for an invitation link."
	case errors.Is(err, common.ErrBanned):
		return "You cannot register an account."
	case errors.Is(err, common.ErrAlreadyRegistered):
		return "You already have an account on this server."
	case errors.Is(err, common.ErrRequestPending):
		return "You already have a registration waiting for approval."
	case errors.Is(err, common.ErrUsernameTaken):
		return "That username is already taken. Start over with /register and pick another."
	case errors.Is(err, common.ErrAlreadyHandled):
		return "This request was already handled."
	default:
		return "Something went wrong, please try again later."
	}
}
