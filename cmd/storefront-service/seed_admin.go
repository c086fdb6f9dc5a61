package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

func seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin user from ADMIN_EMAIL, ADMIN_PASSWORD and ADMIN_NAME",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			b := cfg.Auth.Bootstrap
			if b.Email == "" || b.Password == "" {
				return fmt.Errorf("%w: ADMIN_EMAIL and ADMIN_PASSWORD", config.ErrMissingRequired)
			}
			if !cfg.Postgres.Enabled() {
				return fmt.Errorf("%w: DB_HOST", config.ErrMissingRequired)
			}

			conn, err := db.New(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer conn.Close()

			svc := admin.NewService(admin.NewPostgresRepository(conn.SQL), admin.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
			user, err := svc.CreateAdmin(cmd.Context(), b.Email, b.Password, b.Name)
			if errors.Is(err, admin.ErrEmailExists) {
				log.Info().Str("email", admin.NormalizeEmail(b.Email)).Msg("Admin already exists, nothing to do")
				return nil
			}
			if err != nil {
				return err
			}

			log.Info().Str("admin_id", user.ID.String()).Str("email", user.Email).Msg("Admin user created")
			return nil
		},
	}
}
