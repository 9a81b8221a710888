package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frictionless-support/support-service/internal/application"
	"github.com/frictionless-support/support-service/internal/config"
	"github.com/frictionless-support/support-service/internal/logging"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API (migrates the schema first)",
	RunE:  runAPI,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logging.Init("support-service", cfg.AppEnv, cfg.LogLevel)
	return cfg, nil
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := application.NewAPI(ctx, cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
