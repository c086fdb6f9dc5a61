package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

func migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Postgres.Enabled() {
				return fmt.Errorf("%w: DB_HOST", config.ErrMissingRequired)
			}
			return db.ApplyMigrations(cfg.Postgres, down)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations instead of applying them")

	return cmd
}
