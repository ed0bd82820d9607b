// Package bans declares the repository contract for refused chat identities.
package bans

import (
	"context"

	"github.com/talkreg/regbot/internal/models"
)

// Repository stores banned chat identities.
type Repository interface {
	// Upsert inserts or replaces a ban for the identity in b.TelegramID.
	Upsert(ctx context.Context, b *models.BannedUser) error

	// Get returns the ban for a chat identity, or common.ErrorNotFound.
	Get(ctx context.Context, telegramID int64) (*models.BannedUser, error)

	// IsBanned reports whether the identity is currently banned.
	IsBanned(ctx context.Context, telegramID int64) (bool, error)

	// List returns every ban, most recent first.
	List(ctx context.Context) ([]*models.BannedUser, error)

	// Delete lifts a ban and reports whether a row was deleted.
	Delete(ctx context.Context, telegramID int64) (bool, error)
}
