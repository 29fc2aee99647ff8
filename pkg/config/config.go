package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      App
	DB       DB
	Redis    Redis
	JWT      JWT
	Paystack Paystack
	MNotify  MNotify
	Escrow   Escrow
	Cart     Cart
	Cron     Cron
	Outbox   Outbox
	PubSub   PubSub
}

type App struct {
	Env             string        `envconfig:"APP_ENV" default:"development"`
	Port            string        `envconfig:"PORT" default:"8080"`
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"agritrade-api"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

type DB struct {
	DSN             string        `envconfig:"DB_DSN"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            string        `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"postgres"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Name            string        `envconfig:"DB_NAME" default:"agritrade"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type JWT struct {
	Secret   string        `envconfig:"JWT_SECRET"`
	Issuer   string        `envconfig:"JWT_ISSUER" default:"agritrade"`
	Lifetime time.Duration `envconfig:"JWT_LIFETIME" default:"24h"`
}

type Paystack struct {
	SecretKey   string        `envconfig:"PAYSTACK_SECRET_KEY"`
	BaseURL     string        `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"PAYSTACK_TIMEOUT" default:"30s"`
}

type MNotify struct {
	APIKey   string        `envconfig:"MNOTIFY_API_KEY"`
	SenderID string        `envconfig:"MNOTIFY_SENDER_ID" default:"AgriTrade"`
	BaseURL  string        `envconfig:"MNOTIFY_BASE_URL" default:"https://api.mnotify.com/api"`
	Timeout  time.Duration `envconfig:"MNOTIFY_TIMEOUT" default:"10s"`
	Enabled  bool          `envconfig:"MNOTIFY_ENABLED" default:"false"`
}

type Escrow struct {
	PlatformFeePercent  int64 `envconfig:"ESCROW_PLATFORM_FEE_PERCENT" default:"5"`
	AutoReleaseDays     int   `envconfig:"ESCROW_AUTO_RELEASE_DAYS" default:"7"`
	DisputeDeadlineDays int   `envconfig:"ESCROW_DISPUTE_DEADLINE_DAYS" default:"3"`
}

type Cart struct {
	TTL time.Duration `envconfig:"CART_TTL" default:"8h"`
}

type Cron struct {
	EscrowReleaseInterval time.Duration `envconfig:"CRON_ESCROW_RELEASE_INTERVAL" default:"6h"`
	CartExpiryInterval    time.Duration `envconfig:"CRON_CART_EXPIRY_INTERVAL" default:"30m"`
	LockTTL               time.Duration `envconfig:"CRON_LOCK_TTL" default:"10m"`
	MetricsPort           string        `envconfig:"CRON_METRICS_PORT" default:"9090"`
}

type Outbox struct {
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	MaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSub struct {
	ProjectID         string `envconfig:"PUBSUB_PROJECT_ID"`
	EventsTopic       string `envconfig:"PUBSUB_EVENTS_TOPIC" default:"agritrade-events"`
	EventsSubcription string `envconfig:"PUBSUB_EVENTS_SUBSCRIPTION" default:"agritrade-events-worker"`
	Enabled           bool   `envconfig:"PUBSUB_ENABLED" default:"false"`
}

// Load reads configuration from the environment, consulting .env in
// development. Missing required values surface as errors from the
// consuming constructors rather than here.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("AGRITRADE", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	cfg.DB.DSN = ensureDSN(cfg.DB)
	return &cfg, nil
}

// ensureDSN assembles a postgres DSN from discrete parts when no
// full DSN was supplied.
func ensureDSN(db DB) string {
	if db.DSN != "" {
		return db.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		db.Port,
		db.Name,
		db.SSLMode,
	)
}
