package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

// shutdownGrace es el tiempo que se espera a requests en vuelo.
const shutdownGrace = 15 * time.Second

// Serve atiende HTTP hasta que ctx se cancela y luego hace shutdown ordenado.
func (c *Container) Serve(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Layer("app"), logger.Op("Serve"))
	cfg := c.Config.Server

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.Handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
