// Package web exposes the mailing preview endpoint over HTTP.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/logging"
	"github.com/cloudmailing/cloudmailing/mailer"
	"github.com/cloudmailing/cloudmailing/mailing"
)

var logger = logging.GetPackageLogger("web")

// Config holds the configuration for the HTTP server.
// This struct can be used with the config core package.
type Config struct {
	Host string `usage:"IP address or hostname the HTTP server binds to"`
	Port uint16 `usage:"Port the HTTP server listens on"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port == 0 {
		return apperror.NewError("web port is required")
	}
	return nil
}

// MailingSource provides stored mailings to the preview endpoint.
type MailingSource interface {
	Mailing(id uint) (*mailing.Mailing, error)
}

// Server serves mailing previews. The preview endpoint parses the stored
// template and returns its displayable body.
type Server struct {
	config *Config
	source MailingSource
	server *http.Server
}

// NewServer creates a preview server reading mailings from the source.
func NewServer(config *Config, source MailingSource) *Server {
	s := &Server{config: config, source: source}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /mailings/{id}/content", s.handleContent)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	logger.Info().Field("address", s.server.Addr).Msg("preview server listening")
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return apperror.NewError("preview server failed").AddError(err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return apperror.Wrap(err)
	}
	return nil
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid mailing id", http.StatusInternalServerError)
		return
	}

	m, err := s.source.Mailing(uint(id))
	if err != nil {
		logger.Warn().Field("mailing", id).Err(err).Msg("preview fetch failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tpl, err := mailer.ParseTemplate([]byte(m.Header), []byte(m.Body))
	if err != nil {
		logger.Warn().Field("mailing", id).Err(err).Msg("preview parse failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := mailer.DisplayableBody(tpl)
	if err != nil {
		logger.Warn().Field("mailing", id).Err(err).Msg("preview extraction failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Error().Err(err).Msg("failed to write preview response")
	}
}
