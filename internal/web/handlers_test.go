package web

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/cryptox"
	"github.com/talkreg/regbot/internal/directory"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/migrations"
	"github.com/talkreg/regbot/internal/repositories/repomanager"
	"github.com/talkreg/regbot/internal/services"
)

type fakeDir struct {
	mu       sync.Mutex
	accounts map[string]struct{}
}

func (d *fakeDir) AccountExists(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.accounts[username]
	return ok, nil
}

func (d *fakeDir) ListAccounts(ctx context.Context) ([]directory.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]directory.Account, 0, len(d.accounts))
	for u := range d.accounts {
		out = append(out, directory.Account{Username: u})
	}
	return out, nil
}

func (d *fakeDir) CreateAccount(ctx context.Context, acc directory.Account, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[acc.Username]; ok {
		return common.ErrUsernameTaken
	}
	d.accounts[acc.Username] = struct{}{}
	return nil
}

func (d *fakeDir) DeleteAccount(ctx context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[username]; !ok {
		return common.ErrorNotFound
	}
	delete(d.accounts, username)
	return nil
}

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PublicHost = "voice.example.com"
	cfg.ServerName = "Example Voice"
	cfg.WebPublicURL = "http://reg.example.com"

	repos := repomanager.NewSQLiteRepositoryManager()
	dir := &fakeDir{accounts: make(map[string]struct{})}
	sealer := cryptox.NewSealer("", nil)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	intake := services.NewIntakeService(db, repos, dir, sealer, cfg, logger)
	tokens := services.NewTokenService(db, repos, cfg, logger)
	provision := services.NewProvisionService(db, repos, dir, sealer, tokens,
		services.NopNotifier{}, t.TempDir(), cfg, logger)

	return NewServer(db, intake, provision, tokens, cfg, logger), cfg
}

func postForm(t *testing.T, s *Server, values url.Values, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(values.Encode()))
	req.Header.Set(echoContentType, "application/x-www-form-urlencoded")
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestRegisterForm(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/register", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Register on Example Voice")
	assert.Contains(t, rec.Body.String(), `name="username"`)
}

func TestRegisterSubmit_ProvisionsAccount(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, url.Values{
		"username": {"webbie"},
		"password": {"pw123"},
		"nickname": {"Webbie"},
	}, "10.1.2.3:5555")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Your account <strong>webbie</strong> is ready.")
	assert.Contains(t, body, "tt://voice.example.com")
	assert.Contains(t, body, "http://reg.example.com/download/")
	assert.NotContains(t, body, "client bundle", "no bundle without a template dir")
}

func TestRegisterSubmit_ClientBundle(t *testing.T) {
	s, cfg := newTestServer(t)

	tpl := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tpl, "TeamTalk5.exe"), []byte("binary"), 0o644))
	cfg.ClientTemplateDir = tpl

	rec := postForm(t, s, url.Values{
		"username": {"webbie"}, "password": {"pw"},
	}, "10.1.2.3:5555")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "ready-to-run client bundle")

	// The bundle link is the last download link on the page and carries
	// its own single-use token.
	i := strings.LastIndex(body, "/download/")
	require.GreaterOrEqual(t, i, 0)
	token := body[i+len("/download/"):]
	token = token[:strings.IndexAny(token, `"<`)]

	get := httptest.NewRecorder()
	s.echo.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/download/"+token, nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, get.Header().Get("Content-Disposition"), "webbie_TeamTalk.zip")
}

func TestRegisterSubmit_ValidationError(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, url.Values{
		"username": {""},
		"password": {"pw123"},
	}, "10.1.2.3:5555")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username is empty.")
}

func TestRegisterSubmit_SameIPTwice(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, url.Values{
		"username": {"first"}, "password": {"pw"},
	}, "10.1.2.3:5555")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "is ready")

	rec = postForm(t, s, url.Values{
		"username": {"second"}, "password": {"pw"},
	}, "10.1.2.3:6666")
	assert.Contains(t, rec.Body.String(), "An account was already registered from your address.")
}

func TestDownload_SingleUse(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, url.Values{
		"username": {"dl"}, "password": {"pw"},
	}, "10.1.2.3:5555")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	i := strings.Index(body, "/download/")
	require.GreaterOrEqual(t, i, 0)
	token := body[i+len("/download/"):]
	token = token[:strings.IndexAny(token, `"<`)]

	req := httptest.NewRequest(http.MethodGet, "/download/"+token, nil)
	get := httptest.NewRecorder()
	s.echo.ServeHTTP(get, req)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, get.Header().Get("Content-Disposition"), "dl.tt")
	assert.Contains(t, get.Body.String(), "<username>dl</username>")

	// Second attempt is refused.
	again := httptest.NewRecorder()
	s.echo.ServeHTTP(again, httptest.NewRequest(http.MethodGet, "/download/"+token, nil))
	assert.Equal(t, http.StatusGone, again.Code)
}

func TestDownload_Unknown(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/deadbeef", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProxyHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	// Without WebProxyHeaders the X-Forwarded-For header is ignored and
	// the socket address is used, so two submissions from the same socket
	// address with different XFF values still hit the per-IP limit.
	v := url.Values{"username": {"p1"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(v.Encode()))
	req.Header.Set(echoContentType, "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "1.1.1.1")
	req.RemoteAddr = "10.9.9.9:1000"
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Contains(t, rec.Body.String(), "is ready")

	v = url.Values{"username": {"p2"}, "password": {"pw"}}
	req = httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(v.Encode()))
	req.Header.Set(echoContentType, "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "2.2.2.2")
	req.RemoteAddr = "10.9.9.9:2000"
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "already registered from your address")
}
