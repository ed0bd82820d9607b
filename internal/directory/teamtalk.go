package directory

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/models"
)

// TeamTalk 5 user account types.
const (
	userTypeDefault = 1
	userTypeAdmin   = 2
)

// TeamTalkConfig holds the connection settings for a TeamTalk 5 server.
// Username/Password must belong to an admin account, since only admins may
// manage user accounts.
type TeamTalkConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	Username   string
	Password   string
	Nickname   string
	ClientName string
	Timeout    time.Duration
}

// TeamTalkClient implements Client over the TeamTalk 5 text protocol.
// A fresh connection is dialed per operation: account management calls are
// rare and a persistent session would need keepalive handling.
type TeamTalkClient struct {
	cfg    TeamTalkConfig
	logger logging.Logger
}

// NewTeamTalkClient constructs a TeamTalkClient.
func NewTeamTalkClient(cfg TeamTalkConfig, logger logging.Logger) *TeamTalkClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "regbot"
	}
	return &TeamTalkClient{cfg: cfg, logger: logger.With("module", "teamtalk")}
}

// CommandError is an error reply from the server, e.g.
// "error number=2001 message="Invalid username"".
type CommandError struct {
	Number  int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("teamtalk error %d: %s", e.Number, e.Message)
}

func (c *TeamTalkClient) AccountExists(ctx context.Context, username string) (bool, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return false, err
	}
	for _, acc := range accounts {
		if acc.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (c *TeamTalkClient) ListAccounts(ctx context.Context) ([]Account, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.close()

	lines, err := conn.do("listaccounts")
	if err != nil {
		return nil, fmt.Errorf("listaccounts: %w", err)
	}

	var accounts []Account
	for _, line := range lines {
		word, fields := parseLine(line)
		if word != "useraccount" {
			continue
		}
		acc := Account{Username: fields["username"], Type: models.AccountTypeDefault}
		if ut, err := strconv.Atoi(fields["usertype"]); err == nil && ut == userTypeAdmin {
			acc.Type = models.AccountTypeAdmin
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (c *TeamTalkClient) CreateAccount(ctx context.Context, acc Account, password string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.close()

	userType := userTypeDefault
	if acc.Type == models.AccountTypeAdmin {
		userType = userTypeAdmin
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "newaccount username=%s password=%s usertype=%d",
		ttQuote(acc.Username), ttQuote(password), userType)
	if acc.Rights != 0 {
		fmt.Fprintf(&sb, " userrights=%d", acc.Rights)
	}
	if acc.Note != "" {
		fmt.Fprintf(&sb, " note=%s", ttQuote(acc.Note))
	}

	_, err = conn.do(sb.String())
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.Contains(strings.ToLower(cmdErr.Message), "exist") {
			return common.ErrUsernameTaken
		}
		return fmt.Errorf("newaccount: %w", err)
	}
	return nil
}

func (c *TeamTalkClient) DeleteAccount(ctx context.Context, username string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.close()

	_, err = conn.do(fmt.Sprintf("delaccount username=%s", ttQuote(username)))
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			msg := strings.ToLower(cmdErr.Message)
			if strings.Contains(msg, "not exist") || strings.Contains(msg, "unknown") {
				return common.ErrorNotFound
			}
		}
		return fmt.Errorf("delaccount: %w", err)
	}
	return nil
}

// connect dials the server, consumes the welcome line, and logs in as the
// configured admin. Transient dial failures are retried with a short
// fibonacci backoff.
func (c *TeamTalkClient) connect(ctx context.Context) (*ttConn, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	var nc net.Conn
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d := net.Dialer{Timeout: c.cfg.Timeout}
		var err error
		if c.cfg.UseTLS {
			nc, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: c.cfg.Host})
		} else {
			nc, err = d.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrDirectoryUnavailable, addr, err)
	}

	conn := &ttConn{nc: nc, r: bufio.NewReader(nc), timeout: c.cfg.Timeout}

	welcome, err := conn.readLine()
	if err != nil {
		conn.close()
		return nil, fmt.Errorf("%w: welcome: %v", common.ErrDirectoryUnavailable, err)
	}
	c.logger.Debug(ctx, "connected to directory", "welcome", welcome)

	_, err = conn.do(fmt.Sprintf("login username=%s password=%s nickname=%s clientname=%s protocol=\"5.6\"",
		ttQuote(c.cfg.Username), ttQuote(c.cfg.Password), ttQuote(c.cfg.Nickname), ttQuote(c.cfg.ClientName)))
	if err != nil {
		conn.close()
		return nil, fmt.Errorf("%w: login: %v", common.ErrDirectoryUnavailable, err)
	}
	return conn, nil
}

// ttConn is a single protocol session. Commands are sent with an id, and
// the server brackets each reply between "begin id=N" and "end id=N".
// Unsolicited event lines arriving outside the bracket are skipped.
type ttConn struct {
	nc      net.Conn
	r       *bufio.Reader
	nextID  int
	timeout time.Duration
}

func (c *ttConn) close() {
	// Best effort; the server drops the session either way.
	_ = c.nc.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = fmt.Fprintf(c.nc, "quit\r\n")
	_ = c.nc.Close()
}

func (c *ttConn) readLine() (string, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// do sends cmd with a fresh id and returns the payload lines of the reply.
// An "error" line inside the bracket is returned as a *CommandError.
func (c *ttConn) do(cmd string) ([]string, error) {
	c.nextID++
	id := c.nextID

	if err := c.nc.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(c.nc, "%s id=%d\r\n", cmd, id); err != nil {
		return nil, err
	}

	began := false
	var payload []string
	var cmdErr *CommandError
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		word, fields := parseLine(line)
		switch {
		case word == "begin" && fields["id"] == strconv.Itoa(id):
			began = true
		case word == "end" && fields["id"] == strconv.Itoa(id):
			if cmdErr != nil {
				return nil, cmdErr
			}
			return payload, nil
		case !began:
			// Event line outside our bracket.
			continue
		case word == "error":
			number, _ := strconv.Atoi(fields["number"])
			cmdErr = &CommandError{Number: number, Message: fields["message"]}
		case word == "ok":
			// Success marker; payload lines already collected.
		default:
			payload = append(payload, line)
		}
	}
}

// parseLine splits a protocol line into its leading word and key=value
// fields. Values are either bare tokens or quoted strings with backslash
// escapes.
func parseLine(line string) (string, map[string]string) {
	fields := make(map[string]string)
	rest := strings.TrimSpace(line)

	word := rest
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		word, rest = rest[:i], rest[i+1:]
	} else {
		rest = ""
	}

	for len(rest) > 0 {
		rest = strings.TrimLeft(rest, " ")
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			break
		}
		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			var sb strings.Builder
			i := 1
			for i < len(rest) {
				ch := rest[i]
				if ch == '\\' && i+1 < len(rest) {
					sb.WriteByte(rest[i+1])
					i += 2
					continue
				}
				if ch == '"' {
					i++
					break
				}
				sb.WriteByte(ch)
				i++
			}
			value = sb.String()
			rest = rest[i:]
		} else {
			end := strings.IndexByte(rest, ' ')
			if end < 0 {
				end = len(rest)
			}
			value = rest[:end]
			rest = rest[end:]
		}
		fields[key] = value
	}
	return word, fields
}

// ttQuote renders s as a quoted protocol string, escaping backslashes and
// quotes.
func ttQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"':
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
