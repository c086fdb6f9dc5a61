package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log.Info().Str("env", cfg.App.Env).Msg("Storefront service starting...")

			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			server := &http.Server{
				Addr:         ":" + cfg.App.Port,
				Handler:      application.Router,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: cfg.Timeouts.ServerWrite,
				IdleTimeout:  120 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErr:
				return fmt.Errorf("could not listen on %s: %w", cfg.App.Port, err)
			case <-stopCh:
			}

			log.Info().Msg("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}

			log.Info().Msg("Storefront service stopped gracefully")
			return nil
		},
	}
}
