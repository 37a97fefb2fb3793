// config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST,default=localhost"`
	DBUser      string `env:"DB_USER,default=postgres"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME,default=library"`
	DBPort      string `env:"DB_PORT,default=5432"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	Port       string        `env:"PORT,default=3001"`
	WebOrigin  string        `env:"WEB_ORIGIN,default=http://localhost:5173"`
	SessionTTL time.Duration `env:"SESSION_TTL,default=24h"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1h"`
	SweepWorkers  int           `env:"SWEEP_WORKERS,default=4"`
	TxMaxAttempts int           `env:"TX_MAX_ATTEMPTS,default=5"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT,default=587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// LoadEnv reads .env into the process environment. A missing file is fine,
// real deployments set the variables directly.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}
}

func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.SweepInterval <= 0:
		return errors.New("SWEEP_INTERVAL must be positive")
	case c.SweepWorkers <= 0:
		return errors.New("SWEEP_WORKERS must be positive")
	case c.TxMaxAttempts <= 0:
		return errors.New("TX_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// DSN prefers DATABASE_URL and falls back to the DB_* parts.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
