package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	// RedisURL selects the shared rate-limit store. When empty the limiter
	// falls back to an in-process store, which only approximates the limit
	// across multiple instances.
	RedisURL string `env:"REDIS_URL"`

	// WebhookSecret signs ClickPesa callbacks. Leaving it empty disables
	// signature verification and is only acceptable outside production.
	WebhookSecret     string `env:"CLICKPESA_WEBHOOK_SECRET"`
	SignatureEncoding string `env:"CLICKPESA_SIGNATURE_ENCODING" envDefault:"hex"`

	OpsJWTSecret string `env:"OPS_JWT_SECRET,required"`

	// NotifyURL is the notification service that sends booking confirmation
	// and cancellation emails. Empty means notifications are logged only.
	NotifyURL     string        `env:"NOTIFY_URL"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	WebhookRateLimit  int           `env:"WEBHOOK_RATE_LIMIT" envDefault:"60"`
	WebhookRateWindow time.Duration `env:"WEBHOOK_RATE_WINDOW" envDefault:"1m"`
	OpsRateLimit      int           `env:"OPS_RATE_LIMIT" envDefault:"120"`
	OpsRateWindow     time.Duration `env:"OPS_RATE_WINDOW" envDefault:"1m"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
