// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string `env:"ADDR" env-default:":8080"`
	BaseURL    string `env:"BASE_URL" validate:"omitempty,url"`
	TrustProxy bool   `env:"TRUST_PROXY" env-default:"false"`

	Store         string        `env:"STORE" env-default:"redis" validate:"oneof=memory redis postgres"`
	RedisAddr     string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" env-default:"0" validate:"gte=0"`
	DatabaseDSN   string        `env:"DATABASE_DSN" validate:"required_if=Store postgres"`
	CacheSize     int           `env:"CACHE_SIZE" env-default:"0" validate:"gte=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" env-default:"1m"`

	CodeLength       int           `env:"CODE_LENGTH" env-default:"6" validate:"gte=4,lte=64"`
	CodeAttempts     int           `env:"CODE_ATTEMPTS" env-default:"32" validate:"gte=1"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" env-default:"100" validate:"gte=1"`
	CountryHeader    string        `env:"COUNTRY_HEADER" env-default:"CF-IPCountry"`
	AnalyticsTimeout time.Duration `env:"ANALYTICS_TIMEOUT" env-default:"5s"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" env-default:"10" validate:"gte=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" env-default:"20" validate:"gte=1"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	LogFile   string `env:"LOG_FILE"`
	SentryDSN string `env:"SENTRY_DSN"`

	AppURL       string `env:"APP_URL" env-default:"http://localhost:3000" validate:"url"`
	SMTPAddr     string `env:"SMTP_ADDR"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" env-default:"no-reply@localhost"`
	BcryptCost   int    `env:"BCRYPT_COST" env-default:"10" validate:"gte=4,lte=31"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv binds and validates the process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
