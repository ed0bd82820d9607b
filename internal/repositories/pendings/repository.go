// Package pendings declares the repository contract for intake requests
// awaiting provisioning.
package pendings

import (
	"context"
	"time"

	"github.com/talkreg/regbot/internal/models"
)

// Repository stores pending registrations from both intake channels.
// Request keys identify individual requests across restarts.
type Repository interface {
	// CreateTelegram stores a new chat-bot intake request.
	CreateTelegram(ctx context.Context, p *models.PendingTelegramRegistration) error

	// GetTelegram looks a chat-bot request up by its request key.
	// Returns common.ErrorNotFound when absent.
	GetTelegram(ctx context.Context, requestKey string) (*models.PendingTelegramRegistration, error)

	// DeleteTelegram removes a chat-bot request and reports whether a row
	// was actually deleted. The boolean is what makes concurrent
	// approvals race-safe: only one caller observes true.
	DeleteTelegram(ctx context.Context, requestKey string) (bool, error)

	// ListTelegram returns all chat-bot requests, oldest first.
	ListTelegram(ctx context.Context) ([]*models.PendingTelegramRegistration, error)

	// CreateWeb stores a new web-form intake request.
	CreateWeb(ctx context.Context, p *models.PendingWebRegistration) error

	// GetWeb looks a web request up by its request key.
	GetWeb(ctx context.Context, requestKey string) (*models.PendingWebRegistration, error)

	// DeleteWeb removes a web request and reports whether a row was deleted.
	DeleteWeb(ctx context.Context, requestKey string) (bool, error)

	// UsernamePending reports whether any pending request, from either
	// channel, already claims the given directory username.
	UsernamePending(ctx context.Context, username string) (bool, error)

	// HasTelegramPending reports whether the chat identity already has an
	// open request.
	HasTelegramPending(ctx context.Context, telegramID int64) (bool, error)

	// PurgeOlderThan deletes requests created before cutoff from both
	// channels and returns the number of rows removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
