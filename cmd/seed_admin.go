package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/database"
	"github.com/frictionless-support/support-service/internal/service"
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the super admin from SUPER_ADMIN_* if no admin exists yet",
	RunE:  runSeedAdmin,
}

func runSeedAdmin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.SuperAdmin.Password == "" {
		return errors.New("seed-admin: SUPER_ADMIN_PASSWORD is required")
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.AdminTTL, cfg.JWT.ClientTTL)
	created, err := service.NewAdminService(conn, issuer).
		EnsureSuperAdmin(ctx, cfg.SuperAdmin.Email, cfg.SuperAdmin.Password, cfg.SuperAdmin.Name)
	if err != nil {
		return fmt.Errorf("seed-admin: %w", err)
	}
	if created {
		log.Info().Str("email", cfg.SuperAdmin.Email).Msg("seed-admin: super admin created")
	} else {
		log.Info().Msg("seed-admin: admins already exist, nothing to do")
	}
	return nil
}
