package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "super-secret-key-change-in-prod"

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Redis is optional. When Addr is empty OTP codes and stats live in process memory,
	// which is only correct for a single instance.
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	JWT struct {
		Secret    string
		AdminTTL  time.Duration
		ClientTTL time.Duration
	}

	OTPTTL        time.Duration
	StatsCacheTTL time.Duration

	// SMTP delivers OTP codes. When Host is empty codes are only written to the log,
	// which Validate refuses in production.
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}

	AllowedOrigins []string

	RateLimit struct {
		Requests int
		Window   time.Duration
	}

	SuperAdmin struct {
		Email    string
		Password string
		Name     string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:  getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort: firstEnv("APP_PORT", "HTTP_PORT", "PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "support_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", cfg.SMTP.Username)
	cfg.JWT.Secret = getEnv("JWT_SECRET", defaultJWTSecret)
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "*"))
	cfg.SuperAdmin.Email = strings.ToLower(getEnv("SUPER_ADMIN_EMAIL", "admin@support.com"))
	cfg.SuperAdmin.Password = getEnv("SUPER_ADMIN_PASSWORD", "")
	cfg.SuperAdmin.Name = getEnv("SUPER_ADMIN_NAME", "Super Admin")

	var err error
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Requests, err = getInt("RATE_LIMIT_REQUESTS", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Window, err = getDuration("RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWT.AdminTTL, err = getDuration("JWT_ADMIN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.JWT.ClientTTL, err = getDuration("JWT_CLIENT_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OTPTTL, err = getDuration("OTP_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StatsCacheTTL, err = getDuration("STATS_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.JWT.Secret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.OTPTTL <= 0 || c.StatsCacheTTL <= 0 || c.JWT.AdminTTL <= 0 || c.JWT.ClientTTL <= 0 {
		return errors.New("config: OTP_TTL, STATS_CACHE_TTL and JWT TTLs must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("config: RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.IsProduction() {
		if c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
		if c.JWT.Secret == defaultJWTSecret {
			return errors.New("config: in production JWT_SECRET must be set")
		}
		if c.SuperAdmin.Password == "" {
			return errors.New("config: in production SUPER_ADMIN_PASSWORD is required")
		}
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return errors.New("config: in production SMTP_HOST and SMTP_FROM are required")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration like 5m: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
