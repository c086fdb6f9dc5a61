package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
)

var envFile string

func main() {
	// суммы в JSON отдаем числами, как ждет админка
	decimal.MarshalJSONWithoutQuotes = true

	rootCmd := &cobra.Command{
		Use:           "storefront-service",
		Short:         "Storefront checkout, order storage and admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load before reading the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// loadConfig читает конфигурацию и настраивает глобальный логгер под нее.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.App)
	return cfg, nil
}

func setupLogger(app config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(app.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if app.Env != config.EnvProduction {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "storefront-service").Logger()
}
