// Package directory talks to the external account directory (the TeamTalk
// voice server) that provisioned accounts live on. The directory is the
// source of truth for account existence; the local database only records
// which chat identity owns which account.
package directory

import (
	"context"

	"github.com/talkreg/regbot/internal/models"
)

// Account is a user account on the directory. Rights is the TeamTalk
// user-rights bitmask (see RightsMask); zero means the server default.
// Note is free-form operator-visible text stored on the account.
type Account struct {
	Username string
	Type     models.AccountType
	Rights   uint32
	Note     string
}

// Client is the operation surface the services need from the directory.
//
// Implementations must map transport failures to
// common.ErrDirectoryUnavailable and a duplicate-username rejection from
// CreateAccount to common.ErrUsernameTaken.
type Client interface {
	// AccountExists reports whether username exists on the directory.
	AccountExists(ctx context.Context, username string) (bool, error)

	// ListAccounts returns every account on the directory.
	ListAccounts(ctx context.Context) ([]Account, error)

	// CreateAccount creates a new account with the given password.
	CreateAccount(ctx context.Context, acc Account, password string) error

	// DeleteAccount removes an account. Unknown usernames yield
	// common.ErrorNotFound.
	DeleteAccount(ctx context.Context, username string) error
}
