package config

import (
	"flag"
	"os"

	"github.com/talkreg/regbot/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   web bind address (e.g., ":5000")
//	-d string   SQLite database path
//	-t string   Telegram bot token
//	-u string   directory admin username
//	-p string   directory admin password
//	-s string   directory (TeamTalk) host
//
// The remaining settings are only reachable through the JSON config file.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-u", "-p", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.WebAddr, "a", config.WebAddr, "address and port for the web server")
	fs.StringVar(&config.DatabasePath, "d", config.DatabasePath, "SQLite database path")
	fs.StringVar(&config.BotToken, "t", config.BotToken, "Telegram bot token")
	fs.StringVar(&config.DirectoryUsername, "u", config.DirectoryUsername, "directory admin username")
	fs.StringVar(&config.DirectoryPassword, "p", config.DirectoryPassword, "directory admin password")
	fs.StringVar(&config.DirectoryHost, "s", config.DirectoryHost, "directory host")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
