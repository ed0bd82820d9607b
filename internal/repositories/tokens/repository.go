// Package tokens declares the repository contract for single-use,
// time-boxed tokens: file-download grants and chat-bot invitation
// deeplinks.
package tokens

import (
	"context"
	"time"

	"github.com/talkreg/regbot/internal/models"
)

// Repository stores download and deeplink tokens. Redeem operations burn
// the token atomically so that exactly one concurrent caller succeeds.
type Repository interface {
	// CreateDownload stores a new download token.
	CreateDownload(ctx context.Context, t *models.DownloadToken) error

	// RedeemDownload marks the token used and returns it. It fails with
	// common.ErrorNotFound for unknown tokens, common.ErrTokenUsed for
	// already redeemed ones, and common.ErrTokenExpired past expiry.
	RedeemDownload(ctx context.Context, token string, now time.Time) (*models.DownloadToken, error)

	// CreateDeeplink stores a new invitation token.
	CreateDeeplink(ctx context.Context, t *models.DeeplinkToken) error

	// RedeemDeeplink marks the invitation used, with the same error
	// contract as RedeemDownload.
	RedeemDeeplink(ctx context.Context, token string, now time.Time) (*models.DeeplinkToken, error)

	// PurgeExpired deletes used and expired tokens of both kinds and
	// returns the number of rows removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
