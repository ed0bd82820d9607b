package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talkreg/regbot/internal/timex"
)

func durationPtr(d time.Duration) *timex.Duration {
	return &timex.Duration{Duration: d}
}

func TestParseFlags_OverridesSelectedFields(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"regbot",
		"-a", ":8080",
		"-d", "/var/lib/regbot/regbot.db",
		"-t", "123:abc",
		"-u", "admin",
		"-p", "adminpw",
		"-s", "voice.example.org",
	}
	defer func() { os.Args = oldArgs }()

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, "/var/lib/regbot/regbot.db", cfg.DatabasePath)
	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, "admin", cfg.DirectoryUsername)
	assert.Equal(t, "adminpw", cfg.DirectoryPassword)
	assert.Equal(t, "voice.example.org", cfg.DirectoryHost)
}

func TestParseFlags_UnknownFlagsIgnored(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"regbot", "-a", ":8080", "-zzz", "whatever"}
	defer func() { os.Args = oldArgs }()

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":8080", cfg.WebAddr)
}
