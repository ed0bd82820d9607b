// Package links declares the repository contract for chat-identity to
// directory-account links.
package links

import (
	"context"

	"github.com/talkreg/regbot/internal/models"
)

// Repository stores which chat identity owns which directory account.
type Repository interface {
	// Upsert records that telegramID owns username, replacing any previous
	// link for that identity.
	Upsert(ctx context.Context, telegramID int64, username string) error

	// Get returns the link for a chat identity, or common.ErrorNotFound.
	Get(ctx context.Context, telegramID int64) (*models.AccountLink, error)

	// GetByUsername returns the link owning a directory username, or
	// common.ErrorNotFound.
	GetByUsername(ctx context.Context, username string) (*models.AccountLink, error)

	// List returns every link ordered by Telegram ID.
	List(ctx context.Context) ([]*models.AccountLink, error)

	// Delete removes a link and reports whether a row was deleted.
	Delete(ctx context.Context, telegramID int64) (bool, error)
}
