package web

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/services"
)

// formData feeds the register template.
type formData struct {
	ServerName string
	Username   string
	Nickname   string
	Error      string
}

// resultData feeds the success template.
type resultData struct {
	ServerName     string
	Username       string
	TTLink         string
	DownloadURL    string
	ZipDownloadURL string
}

func (s *Server) registerForm(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", formData{ServerName: s.cfg.ServerName})
}

func (s *Server) registerSubmit(c echo.Context) error {
	sub := services.WebSubmission{
		Username:  strings.TrimSpace(c.FormValue("username")),
		Password:  c.FormValue("password"),
		Nickname:  strings.TrimSpace(c.FormValue("nickname")),
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}

	retry := formData{ServerName: s.cfg.ServerName, Username: sub.Username, Nickname: sub.Nickname}

	p, err := s.intake.SubmitWeb(c.Request().Context(), sub)
	if err != nil {
		retry.Error = webError(err)
		return c.Render(http.StatusOK, "register.html", retry)
	}

	acc, err := s.provision.ProvisionWeb(c.Request().Context(), p)
	if err != nil {
		s.logger.Error(c.Request().Context(), "web provisioning failed",
			"username", sub.Username, "error", err)
		retry.Error = webError(err)
		return c.Render(http.StatusOK, "register.html", retry)
	}

	return c.Render(http.StatusOK, "success.html", resultData{
		ServerName:     s.cfg.ServerName,
		Username:       acc.Username,
		TTLink:         acc.TTLink,
		DownloadURL:    acc.DownloadURL,
		ZipDownloadURL: acc.ZipDownloadURL,
	})
}

// download redeems a single-use token and streams the connection file.
func (s *Server) download(c echo.Context) error {
	tok, err := s.tokens.RedeemDownload(c.Request().Context(), c.Param("token"))
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorNotFound):
		return c.String(http.StatusNotFound, "Unknown download link.")
	case errors.Is(err, common.ErrTokenUsed):
		return c.String(http.StatusGone, "This download link was already used.")
	case errors.Is(err, common.ErrTokenExpired):
		return c.String(http.StatusGone, "This download link has expired.")
	default:
		s.logger.Error(c.Request().Context(), "download redemption failed", "error", err)
		return c.String(http.StatusInternalServerError, "Something went wrong.")
	}

	// A purged payload invalidates the token even before expiry.
	if _, err := os.Stat(tok.FilePath); err != nil {
		return c.String(http.StatusGone, "This download is no longer available.")
	}
	return c.Attachment(tok.FilePath, tok.OriginalName)
}

func (s *Server) healthz(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		return c.String(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.String(http.StatusOK, "ok")
}

// webError maps service errors to messages shown on the form.
func webError(err error) string {
	switch {
	case errors.Is(err, common.ErrValidation):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	case errors.Is(err, common.ErrRegistrationClosed):
		return "Registration is currently closed."
	case errors.Is(err, common.ErrIPAlreadyRegistered):
		return "An account was already registered from your address."
	case errors.Is(err, common.ErrUsernameTaken):
		return "That username is already taken."
	case errors.Is(err, common.ErrAlreadyHandled):
		return "This registration was already submitted."
	default:
		return "Something went wrong, please try again later."
	}
}
