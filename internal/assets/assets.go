// Package assets renders the client-side connection artifacts handed to a
// freshly provisioned user: a TeamTalk 5 .tt connection file and a tt://
// link.
package assets

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionInfo is everything a TeamTalk client needs to connect with the
// provisioned account.
type ConnectionInfo struct {
	ServerName      string
	Host            string
	TCPPort         int
	UDPPort         int
	Encrypted       bool
	Username        string
	Password        string
	Nickname        string
	Channel         string
	ChannelPassword string
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// TTFile renders a .tt connection file. The join section is only emitted
// when a channel is configured.
func TTFile(info ConnectionInfo) string {
	var sb strings.Builder
	esc := xmlEscaper.Replace

	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n")
	sb.WriteString("<teamtalk version=\"5.0\">\n")
	sb.WriteString("    <host>\n")
	fmt.Fprintf(&sb, "        <name>%s</name>\n", esc(info.ServerName))
	fmt.Fprintf(&sb, "        <address>%s</address>\n", esc(info.Host))
	fmt.Fprintf(&sb, "        <tcpport>%d</tcpport>\n", info.TCPPort)
	fmt.Fprintf(&sb, "        <udpport>%d</udpport>\n", info.UDPPort)
	fmt.Fprintf(&sb, "        <encrypted>%t</encrypted>\n", info.Encrypted)
	sb.WriteString("        <auth>\n")
	fmt.Fprintf(&sb, "            <username>%s</username>\n", esc(info.Username))
	fmt.Fprintf(&sb, "            <password>%s</password>\n", esc(info.Password))
	sb.WriteString("        </auth>\n")
	sb.WriteString("        <client>\n")
	fmt.Fprintf(&sb, "            <nickname>%s</nickname>\n", esc(info.Nickname))
	sb.WriteString("        </client>\n")
	if info.Channel != "" {
		sb.WriteString("        <join>\n")
		fmt.Fprintf(&sb, "            <channel>%s</channel>\n", esc(info.Channel))
		fmt.Fprintf(&sb, "            <password>%s</password>\n", esc(info.ChannelPassword))
		sb.WriteString("        </join>\n")
	}
	sb.WriteString("    </host>\n")
	sb.WriteString("</teamtalk>\n")
	return sb.String()
}

// TTLink renders a tt:// URL carrying the same connection parameters.
func TTLink(info ConnectionInfo) string {
	params := url.Values{}
	params.Set("tcpport", fmt.Sprintf("%d", info.TCPPort))
	params.Set("udpport", fmt.Sprintf("%d", info.UDPPort))
	params.Set("encrypted", fmt.Sprintf("%t", info.Encrypted))
	params.Set("username", info.Username)
	params.Set("password", info.Password)
	if info.Channel != "" {
		params.Set("channel", info.Channel)
		params.Set("chanpasswd", info.ChannelPassword)
	}
	return fmt.Sprintf("tt://%s?%s", info.Host, params.Encode())
}

// FileName builds the download name of a .tt file for a username.
func FileName(username string) string {
	return sanitizeName(username) + ".tt"
}

// ClientZipName builds the download name of the client bundle.
func ClientZipName(username string) string {
	return sanitizeName(username) + "_TeamTalk.zip"
}

// sanitizeName replaces anything that could upset a filesystem.
func sanitizeName(username string) string {
	var sb strings.Builder
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("account")
	}
	return sb.String()
}
