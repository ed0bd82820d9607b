package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/talkreg/regbot/internal/flagx"
	"github.com/talkreg/regbot/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "10m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, set fields are copied into the
// runtime Config. Omitted fields keep their previous (default) values.
type JsonConfig struct {
	BotToken         *string `json:"bot_token"`
	AdminIDs         []int64 `json:"admin_ids"`
	RegistrationOpen *bool   `json:"registration_open"`
	ApprovalRequired *bool   `json:"approval_required"`
	DeeplinksEnabled *bool   `json:"deeplinks_enabled"`

	WebEnabled      *bool   `json:"web_enabled"`
	WebAddr         *string `json:"web_addr"`
	WebPublicURL    *string `json:"web_public_url"`
	WebProxyHeaders *bool   `json:"web_proxy_headers"`
	OneAccountPerIP *bool   `json:"one_account_per_ip"`

	DirectoryHost       *string         `json:"directory_host"`
	DirectoryTCPPort    *int            `json:"directory_tcp_port"`
	DirectoryUDPPort    *int            `json:"directory_udp_port"`
	DirectoryEncrypted  *bool           `json:"directory_encrypted"`
	DirectoryUsername   *string         `json:"directory_username"`
	DirectoryPassword   *string         `json:"directory_password"`
	DirectoryNickname   *string         `json:"directory_nickname"`
	DirectoryClientName *string         `json:"directory_client_name"`
	DirectoryTimeout    *timex.Duration `json:"directory_timeout"`
	DirectoryUserRights []string        `json:"directory_user_rights"`

	ServerName          *string `json:"server_name"`
	PublicHost          *string `json:"public_host"`
	JoinChannel         *string `json:"join_channel"`
	JoinChannelPassword *string `json:"join_channel_password"`

	DatabasePath      *string `json:"database_path"`
	PayloadDir        *string `json:"payload_dir"`
	SealSecret        *string `json:"seal_secret"`
	ClientTemplateDir *string `json:"client_template_dir"`

	DownloadTokenTTL *timex.Duration `json:"download_token_ttl"`
	DeeplinkTTL      *timex.Duration `json:"deeplink_ttl"`
	PendingTTL       *timex.Duration `json:"pending_ttl"`
	RegisteredIPTTL  *timex.Duration `json:"registered_ip_ttl"`
	CleanupInterval  *timex.Duration `json:"cleanup_interval"`
	BanSyncInterval  *timex.Duration `json:"ban_sync_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a broken config file should
// stop the process immediately.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
	setString(&config.BotToken, c.BotToken)
	if c.AdminIDs != nil {
		config.AdminIDs = c.AdminIDs
	}
	setBool(&config.RegistrationOpen, c.RegistrationOpen)
	setBool(&config.ApprovalRequired, c.ApprovalRequired)
	setBool(&config.DeeplinksEnabled, c.DeeplinksEnabled)

	setBool(&config.WebEnabled, c.WebEnabled)
	setString(&config.WebAddr, c.WebAddr)
	setString(&config.WebPublicURL, c.WebPublicURL)
	setBool(&config.WebProxyHeaders, c.WebProxyHeaders)
	setBool(&config.OneAccountPerIP, c.OneAccountPerIP)

	setString(&config.DirectoryHost, c.DirectoryHost)
	setInt(&config.DirectoryTCPPort, c.DirectoryTCPPort)
	setInt(&config.DirectoryUDPPort, c.DirectoryUDPPort)
	setBool(&config.DirectoryEncrypted, c.DirectoryEncrypted)
	setString(&config.DirectoryUsername, c.DirectoryUsername)
	setString(&config.DirectoryPassword, c.DirectoryPassword)
	setString(&config.DirectoryNickname, c.DirectoryNickname)
	setString(&config.DirectoryClientName, c.DirectoryClientName)
	setDuration(&config.DirectoryTimeout, c.DirectoryTimeout)
	if c.DirectoryUserRights != nil {
		config.DirectoryUserRights = c.DirectoryUserRights
	}

	setString(&config.ServerName, c.ServerName)
	setString(&config.PublicHost, c.PublicHost)
	setString(&config.JoinChannel, c.JoinChannel)
	setString(&config.JoinChannelPassword, c.JoinChannelPassword)

	setString(&config.DatabasePath, c.DatabasePath)
	setString(&config.PayloadDir, c.PayloadDir)
	setString(&config.SealSecret, c.SealSecret)
	setString(&config.ClientTemplateDir, c.ClientTemplateDir)

	setDuration(&config.DownloadTokenTTL, c.DownloadTokenTTL)
	setDuration(&config.DeeplinkTTL, c.DeeplinkTTL)
	setDuration(&config.PendingTTL, c.PendingTTL)
	setDuration(&config.RegisteredIPTTL, c.RegisteredIPTTL)
	setDuration(&config.CleanupInterval, c.CleanupInterval)
	setDuration(&config.BanSyncInterval, c.BanSyncInterval)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
