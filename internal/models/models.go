// Package models defines the persistent entities shared by repositories
// and services.
package models

import "time"

// AccountType selects the privilege level of a provisioned directory account.
type AccountType string

const (
	AccountTypeDefault AccountType = "default"
	AccountTypeAdmin   AccountType = "admin"
)

// PendingTelegramRegistration is an intake request submitted through the
// chat bot that has not been provisioned yet. Password holds the sealed
// form produced by cryptox.Sealer; repositories store it opaquely.
type PendingTelegramRegistration struct {
	ID         int64
	RequestKey string
	TelegramID int64
	Username   string
	Password   string
	Nickname   string
	SourceInfo string
	CreatedAt  time.Time
}

// PendingWebRegistration is an intake request submitted through the web
// form that has not been provisioned yet.
type PendingWebRegistration struct {
	ID         int64
	RequestKey string
	Username   string
	Password   string
	Nickname   string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// AccountLink records that a chat identity owns a directory account.
// At most one link exists per Telegram ID, and a directory username is
// linked to at most one chat identity.
type AccountLink struct {
	TelegramID int64
	Username   string
}

// BannedUser is a chat identity that is refused service. Username is the
// last known directory username, empty when never linked. BannedBy is the
// admin who issued the ban, zero when the ban was applied by the
// reconciliation worker.
type BannedUser struct {
	TelegramID int64
	Username   string
	BannedAt   time.Time
	BannedBy   int64
	Reason     string
}

// DownloadToken grants a single time-boxed download of a generated
// connection file.
type DownloadToken struct {
	Token        string
	FilePath     string
	OriginalName string
	Kind         string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Used         bool
}

// DeeplinkToken grants a single invitation into the chat-bot registration
// dialogue, bypassing the public-registration switch.
type DeeplinkToken struct {
	ID        int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	IssuedBy  int64
}

// RegisteredIP records a successful web registration from an address,
// used to enforce the one-account-per-IP policy.
type RegisteredIP struct {
	IPAddress    string
	Username     string
	RegisteredAt time.Time
}
