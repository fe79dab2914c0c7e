package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"ledgerline/internal/infrastructure/postgres/listener"
	"ledgerline/internal/interfaces/scheduler"
	"ledgerline/internal/shared/config"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler    http.Handler
	Addr       string
	TLSEnabled bool
	CertPath   string
	KeyPath    string
}

// StartServer starts the API server in the background. Listen errors are
// delivered on the returned channel.
func StartServer(scfg ServerConfig, logger zerolog.Logger) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              scfg.Addr,
		Handler:           scfg.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if scfg.TLSEnabled {
			logger.Info().Str("addr", scfg.Addr).Msg("HTTPS server starting")
			err = srv.ListenAndServeTLS(scfg.CertPath, scfg.KeyPath)
		} else {
			logger.Info().Str("addr", scfg.Addr).Msg("HTTP server starting")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return srv, errCh
}

// Background groups the long-running components stopped on shutdown.
// Any of them may be nil.
type Background struct {
	Listener  *listener.StatementListener
	Scheduler *scheduler.Scheduler
	Pool      *scheduler.WorkerPool
}

// GracefulShutdown stops intake first and then drains queued jobs. srv may
// be nil.
func GracefulShutdown(srv *http.Server, bg Background, timeout time.Duration, logger zerolog.Logger) {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("error shutting down HTTP server")
		}
	}
	if bg.Listener != nil {
		bg.Listener.Stop()
	}
	if bg.Scheduler != nil {
		bg.Scheduler.Shutdown(timeout)
	}
	if bg.Pool != nil {
		bg.Pool.Shutdown(timeout)
	}

	logger.Info().Msg("server stopped")
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:    handler,
		Addr:       cfg.Server.Host + ":" + cfg.Server.Port,
		TLSEnabled: cfg.TLS.Enabled,
		CertPath:   cfg.TLS.CertPath,
		KeyPath:    cfg.TLS.KeyPath,
	}
}
