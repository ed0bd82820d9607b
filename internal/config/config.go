// Package config handles runtime configuration: defaults, an optional
// JSON overlay, and command-line flags.
package config

import "time"

// Config holds every runtime setting of the registration service.
//
// Fields:
//   - BotToken: Telegram bot API token. Empty disables the chat-bot channel.
//   - AdminIDs: Telegram IDs allowed to approve, reject, ban, and invite.
//   - RegistrationOpen: master switch for unsolicited registrations.
//   - ApprovalRequired: route chat-bot registrations through admin approval.
//   - DeeplinksEnabled: allow admins to mint single-use invitation links.
//   - Web*: web-form channel settings. WebProxyHeaders must only be set
//     when a trusted reverse proxy rewrites X-Forwarded-For.
//   - Directory*: TeamTalk server admin connection.
//   - ServerName/PublicHost/JoinChannel*: values rendered into the .tt
//     connection artifacts handed to users.
//   - SealSecret: encrypts pending passwords at rest. Empty stores them
//     in cleartext (a warning is logged at startup).
type Config struct {
	BotToken         string
	AdminIDs         []int64
	RegistrationOpen bool
	ApprovalRequired bool
	DeeplinksEnabled bool

	WebEnabled      bool
	WebAddr         string
	WebPublicURL    string
	WebProxyHeaders bool
	OneAccountPerIP bool

	DirectoryHost       string
	DirectoryTCPPort    int
	DirectoryUDPPort    int
	DirectoryEncrypted  bool
	DirectoryUsername   string
	DirectoryPassword   string
	DirectoryNickname   string
	DirectoryClientName string
	DirectoryTimeout    time.Duration
	// DirectoryUserRights lists the TeamTalk user-right names granted to
	// provisioned accounts (e.g. "TRANSMIT_VOICE"). Empty keeps the
	// server's default rights.
	DirectoryUserRights []string

	ServerName          string
	PublicHost          string
	JoinChannel         string
	JoinChannelPassword string

	DatabasePath string
	PayloadDir   string
	SealSecret   string
	// ClientTemplateDir points at an unpacked client distribution. When
	// set, provisioning bundles it with the generated connection file
	// into a ready-to-run zip offered alongside the .tt download.
	ClientTemplateDir string

	DownloadTokenTTL time.Duration
	DeeplinkTTL      time.Duration
	PendingTTL       time.Duration
	RegisteredIPTTL  time.Duration
	CleanupInterval  time.Duration
	BanSyncInterval  time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: Tokens and directory credentials have no defaults and must be
// provided via the JSON config or flags.
func (c *Config) LoadDefaults() {
	c.RegistrationOpen = true
	c.ApprovalRequired = true
	c.DeeplinksEnabled = true

	c.WebEnabled = true
	c.WebAddr = ":5000"
	c.WebPublicURL = "http://localhost:5000"
	c.WebProxyHeaders = false
	c.OneAccountPerIP = true

	c.DirectoryHost = "localhost"
	c.DirectoryTCPPort = 10333
	c.DirectoryUDPPort = 10333
	c.DirectoryNickname = "Registration Bot"
	c.DirectoryClientName = "regbot"
	c.DirectoryTimeout = 10 * time.Second

	c.ServerName = "TeamTalk Server"
	c.PublicHost = "localhost"

	c.DatabasePath = "data/regbot.db"
	c.PayloadDir = "payloads"

	c.DownloadTokenTTL = 10 * time.Minute
	c.DeeplinkTTL = 5 * time.Minute
	c.PendingTTL = 7 * 24 * time.Hour
	c.RegisteredIPTTL = 30 * 24 * time.Hour
	c.CleanupInterval = time.Hour
	c.BanSyncInterval = 5 * time.Minute
}

// IsAdmin reports whether a Telegram identity is a configured admin.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
