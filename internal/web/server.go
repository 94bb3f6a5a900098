// Package web provides an HTTP status server for the gpio-skill daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Server serves the status page and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	router     *echo.Echo
	tracker    *status.Tracker
	log        zerolog.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, log zerolog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		log:     log.With().Str("component", "web").Logger(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", s.handleIndex)
	e.GET("/index.html", s.handleIndex)
	e.GET("/index.json", s.handleJSON)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.router = e

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: e,
	}
	return s
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.httpServer.Addr)
	}
	s.log.Info().Str("address", ln.Addr().String()).Msg("serving HTTP")

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(ln)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve HTTP")
	case <-ctx.Done():
	}

	s.log.Debug().Msg("shutting down HTTP")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown HTTP")
	}
	return nil
}

func (s *Server) handleIndex(c echo.Context) error {
	snap := s.tracker.Snapshot()
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := renderHTML(c.Response(), snap); err != nil {
		s.log.Warn().Err(err).Msg("render index failed")
	}
	return nil
}

func (s *Server) handleJSON(c echo.Context) error {
	snap := s.tracker.Snapshot()
	return c.Blob(http.StatusOK, "application/json", status.FormatJSON(snap))
}
