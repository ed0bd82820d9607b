// Package web is the web-form intake channel plus the single-use file
// download endpoint.
package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/talkreg/regbot/internal/config"
	"github.com/talkreg/regbot/internal/logging"
	"github.com/talkreg/regbot/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

type templateRenderer struct {
	templates *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// Server hosts the registration form and the download endpoint.
type Server struct {
	echo   *echo.Echo
	db     *sql.DB
	cfg    *config.Config
	logger logging.Logger

	intake    *services.IntakeService
	provision *services.ProvisionService
	tokens    *services.TokenService
}

// NewServer wires the routes. With cfg.WebProxyHeaders set the client
// address is taken from X-Forwarded-For, which is only safe behind a
// trusted reverse proxy.
func NewServer(db *sql.DB, intake *services.IntakeService, provision *services.ProvisionService,
	tokens *services.TokenService, cfg *config.Config, logger logging.Logger) *Server {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	if cfg.WebProxyHeaders {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Renderer = &templateRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}

	s := &Server{
		echo:      e,
		db:        db,
		cfg:       cfg,
		logger:    logger.With("module", "web"),
		intake:    intake,
		provision: provision,
		tokens:    tokens,
	}

	e.GET("/register", s.registerForm)
	e.POST("/register", s.registerSubmit)
	e.GET("/download/:token", s.download)
	e.GET("/healthz", s.healthz)
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.WebAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}
