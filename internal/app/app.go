package app

import (
	"context"
	stdhttp "net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/config"
	"github.com/Arnovii/Webchat/internal/console"
	"github.com/Arnovii/Webchat/internal/core"
	transporthttp "github.com/Arnovii/Webchat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server *stdhttp.Server
	cfg    config.Config
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	registry := core.NewRegistry()
	sink := console.New(logger, os.Stdout)
	router := core.NewRouter(registry, sink, logger)
	server := transporthttp.NewServer(registry, router, cfg, logger)

	return &App{
		server: server,
		cfg:    cfg,
		log:    logger,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		var err error
		if a.cfg.TLSEnabled() {
			a.log.Info().
				Str("cert", a.cfg.TLSCertFile).
				Msg("tls enabled")
			err = a.server.ListenAndServeTLS(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
