package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gofalre.io/storefront/handler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, consumeEvents)
		if err != nil {
			return err
		}
		defer a.close()

		h, err := handler.NewHandler(a.svc, logger, handler.WithSecureCookies(cfg.HTTP.SecureCookies))
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: cfg.HTTP.GetReadTimeout(),
			ReadTimeout:       cfg.HTTP.GetReadTimeout(),
			WriteTimeout:      cfg.HTTP.GetWriteTimeout(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Storefront listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err = <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
