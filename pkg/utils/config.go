package utils

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Payment  PaymentConfig
	Booking  BookingConfig
	RabbitMQ RabbitMQConfig
	Outbox   OutboxConfig
	Redis    RedisConfig
	Tracing  TracingConfig
	Admin    AdminConfig
}

type AppConfig struct {
	Name            string
	Env             string
	Port            string
	Debug           bool
	LogPath         string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
}

type BookingConfig struct {
	PendingTTL     time.Duration
	ReaperSchedule string
	ReaperBatch    int
}

type RabbitMQConfig struct {
	URL          string
	Exchange     string
	InboundQueue string
}

type OutboxConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
}

type AdminConfig struct {
	APIKeyHash string
}

// LoadConfig reads .env when present, then lets the process environment override it.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "hotel-booking")
	viper.SetDefault("APP_ENV", "dev")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("PAYMENT_CURRENCY", "usd")
	viper.SetDefault("BOOKING_PENDING_TTL", "30m")
	viper.SetDefault("BOOKING_REAPER_SCHEDULE", "@every 5m")
	viper.SetDefault("BOOKING_REAPER_BATCH", 50)
	viper.SetDefault("RABBITMQ_EXCHANGE", "booking.exchange")
	viper.SetDefault("RABBITMQ_INBOUND_QUEUE", "booking.collaborator.q")
	viper.SetDefault("OUTBOX_INTERVAL", "5s")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 25)
	viper.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("IDEMPOTENCY_TTL", "24h")
	viper.SetDefault("OTEL_SERVICE_NAME", "hotel-booking")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:            viper.GetString("APP_NAME"),
			Env:             viper.GetString("APP_ENV"),
			Port:            viper.GetString("PORT"),
			Debug:           viper.GetBool("DEBUG"),
			LogPath:         viper.GetString("LOG_PATH"),
			ShutdownTimeout: viper.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:            viper.GetString("PAYMENT_CURRENCY"),
		},
		Booking: BookingConfig{
			PendingTTL:     viper.GetDuration("BOOKING_PENDING_TTL"),
			ReaperSchedule: viper.GetString("BOOKING_REAPER_SCHEDULE"),
			ReaperBatch:    viper.GetInt("BOOKING_REAPER_BATCH"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:          viper.GetString("RABBITMQ_URL"),
			Exchange:     viper.GetString("RABBITMQ_EXCHANGE"),
			InboundQueue: viper.GetString("RABBITMQ_INBOUND_QUEUE"),
		},
		Outbox: OutboxConfig{
			Interval:    viper.GetDuration("OUTBOX_INTERVAL"),
			BatchSize:   viper.GetInt("OUTBOX_BATCH_SIZE"),
			MaxAttempts: viper.GetInt("OUTBOX_MAX_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Addr:           viper.GetString("REDIS_ADDR"),
			Password:       viper.GetString("REDIS_PASSWORD"),
			DB:             viper.GetInt("REDIS_DB"),
			IdempotencyTTL: viper.GetDuration("IDEMPOTENCY_TTL"),
		},
		Tracing: TracingConfig{
			Endpoint:    viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: viper.GetString("OTEL_SERVICE_NAME"),
		},
		Admin: AdminConfig{
			APIKeyHash: viper.GetString("ADMIN_API_KEY_HASH"),
		},
	}

	return config, nil
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	if c.Payment.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.Payment.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.Booking.PendingTTL <= 0 {
		return errors.New("BOOKING_PENDING_TTL must be positive")
	}
	return nil
}
