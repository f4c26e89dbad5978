package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"3333"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"mindagrow-engagement"`

	// Postgres
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBHealthCheck     time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	DBAutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"mindagrow"`

	// Auth
	JWTSecret   string   `env:"JWT_SECRET"`
	MetricsUser string   `env:"METRICS_USER"`
	MetricsPass string   `env:"METRICS_PASS"`
	AdminUser   string   `env:"ADMIN_USER"`
	AdminPass   string   `env:"ADMIN_PASS"`
	PprofSecret string   `env:"PPROF_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Logging
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
	LogMaxSizeMB     int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups    int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays    int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`
	LogCompress      bool   `env:"LOG_COMPRESS" envDefault:"false"`

	// Scheduler
	SchedulerEnabled    bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	JobTimeout          time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
	ResetMissionsAt     string        `env:"RESET_MISSIONS_AT" envDefault:"00:05"`
	StreakMaintenanceAt string        `env:"STREAK_MAINTENANCE_AT" envDefault:"23:55"`
	LeaderboardInterval time.Duration `env:"LEADERBOARD_INTERVAL" envDefault:"1h"`

	// Gateway retries
	RetryMaxTries        uint          `env:"RETRY_MAX_TRIES" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"200ms"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"2s"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"30"`
	TrustProxy       bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// Load reads .env (if present) and the process environment into Cfg.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg, err := Parse()
	if err != nil {
		return err
	}
	Cfg = *cfg
	return nil
}

// Parse reads the process environment without touching Cfg.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, _, err := ParseClock(c.ResetMissionsAt); err != nil {
		errs = append(errs, fmt.Errorf("RESET_MISSIONS_AT: %w", err))
	}
	if _, _, err := ParseClock(c.StreakMaintenanceAt); err != nil {
		errs = append(errs, fmt.Errorf("STREAK_MAINTENANCE_AT: %w", err))
	}
	if c.LeaderboardInterval <= 0 {
		errs = append(errs, errors.New("LEADERBOARD_INTERVAL must be positive"))
	}
	if c.RetryMaxTries == 0 {
		errs = append(errs, errors.New("RETRY_MAX_TRIES must be at least 1"))
	}

	if c.MetricsUser == "" || c.MetricsPass == "" {
		log.Printf("WARN: METRICS_USER/METRICS_PASS not set, /metrics will reject every request")
	}
	if c.AdminUser == "" || c.AdminPass == "" {
		log.Printf("WARN: ADMIN_USER/ADMIN_PASS not set, admin job triggers are disabled")
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
