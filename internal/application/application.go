package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/cache"
	"github.com/frictionless-support/support-service/internal/config"
	"github.com/frictionless-support/support-service/internal/database"
	"github.com/frictionless-support/support-service/internal/handler"
	"github.com/frictionless-support/support-service/internal/middleware"
	"github.com/frictionless-support/support-service/internal/notify"
	"github.com/frictionless-support/support-service/internal/otp"
	"github.com/frictionless-support/support-service/internal/redisclient"
	"github.com/frictionless-support/support-service/internal/router"
	"github.com/frictionless-support/support-service/internal/service"
)

const (
	memoryOTPEntries   = 10000
	memoryStatsEntries = 1000
)

// API is the HTTP server in api mode.
type API struct {
	cfg     *config.Config
	httpSrv *http.Server
	db      *gorm.DB
	redis   *redis.Client
}

// NewAPI migrates the schema, connects backing stores and wires the HTTP surface.
func NewAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return newAPI(ctx, cfg, db)
}

// newAPI owns db from here on and closes it when wiring fails.
func newAPI(ctx context.Context, cfg *config.Config, db *gorm.DB) (*API, error) {
	var (
		rdb *redis.Client
		err error
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redisclient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("redis: %w", err)
		}
	} else {
		log.Warn().Msg("REDIS_ADDR not set, OTP codes and stats are kept in process memory")
	}

	h, err := NewHandler(ctx, cfg, db, rdb, codeSender(cfg))
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		closeDB(db)
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &API{cfg: cfg, httpSrv: httpSrv, db: db, redis: rdb}, nil
}

func codeSender(cfg *config.Config) notify.CodeSender {
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("SMTP_HOST not set, OTP codes will only be logged")
		return notify.LogSender{}
	}
	return notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
}

// NewHandler builds services on db and returns the routed handler. rdb may be nil.
// The bootstrap super-admin is created when the admin table is empty.
func NewHandler(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client, sender notify.CodeSender) (http.Handler, error) {
	var (
		codes otp.Store
		stats cache.Provider
	)
	if rdb != nil {
		codes = otp.NewRedisStore(rdb, cfg.OTPTTL)
		stats = cache.NewRedisCache(rdb, cfg.StatsCacheTTL)
	} else {
		codes = otp.NewMemoryStore(memoryOTPEntries, cfg.OTPTTL)
		stats = cache.NewMemoryCache(memoryStatsEntries, cfg.StatsCacheTTL)
	}

	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.AdminTTL, cfg.JWT.ClientTTL)
	ticketSvc := service.NewTicketService(db)
	adminSvc := service.NewAdminService(db, issuer)
	authSvc := service.NewAuthService(db, codes, sender, issuer, cfg.OTPTTL)
	statsSvc := service.NewStatsService(db, stats)

	if cfg.SuperAdmin.Password != "" {
		if _, err := adminSvc.EnsureSuperAdmin(ctx, cfg.SuperAdmin.Email, cfg.SuperAdmin.Password, cfg.SuperAdmin.Name); err != nil {
			return nil, fmt.Errorf("bootstrap super admin: %w", err)
		}
	} else {
		log.Warn().Msg("SUPER_ADMIN_PASSWORD not set, skipping super admin bootstrap")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return router.New(router.Deps{
		Tickets:        handler.NewTicketHandler(ticketSvc),
		Admins:         handler.NewAdminHandler(adminSvc, statsSvc),
		Auth:           handler.NewAuthHandler(authSvc),
		Tokens:         issuer,
		DB:             sqlDB,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		AllowedOrigins: cfg.AllowedOrigins,
	}), nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Info().Str("addr", a.httpSrv.Addr).Msg("HTTP server listening")
	log.Info().Msgf("  Swagger UI:  %s/swagger", base)
	log.Info().Msgf("  Health:      %s/health", base)
	log.Info().Msgf("  Ready:       %s/ready", base)
	log.Info().Msgf("  API:         %s/api/", base)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	closeDB(a.db)
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
