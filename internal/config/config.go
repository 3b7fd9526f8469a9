package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/models"
	"github.com/spf13/viper"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port      string
	LogFormat string
	JWTSecret string
	Parking   ParkingConfig
}

type ParkingConfig struct {
	TotalSlots      int
	RatePerMinute   decimal.Decimal
	DecisionTimeout time.Duration
	Currency        string
	Store           string
	EventQueue      string
	EventQueueCap   int64
}

// Load reads configuration from the .env file and the environment.
// Environment variables override the file, defaults fill the gaps.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	bindings := map[string]string{
		"server.port":              "PORT",
		"log.format":               "LOG_FORMAT",
		"jwt.secret_key":           "JWT_SECRET_KEY",
		"parking.total_slots":      "PARKING_TOTAL_SLOTS",
		"parking.rate_per_minute":  "PARKING_RATE_PER_MINUTE",
		"parking.decision_timeout": "PARKING_DECISION_TIMEOUT",
		"parking.currency":         "PARKING_CURRENCY",
		"parking.store":            "PARKING_STORE",
		"parking.event_queue":      "PARKING_EVENT_QUEUE",
		"parking.event_queue_cap":  "PARKING_EVENT_QUEUE_CAP",
		"database.host":            "DATABASE_HOST",
		"database.port":            "DATABASE_PORT",
		"database.user":            "DATABASE_USER",
		"database.password":        "DATABASE_PASSWORD",
		"database.name":            "DATABASE_NAME",
		"database.ssl_mode":        "DATABASE_SSL_MODE",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"redis.password":           "REDIS_PASSWORD",
		"redis.db":                 "REDIS_DB",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	setDefaults()

	// A missing .env file is fine, the environment and defaults still apply.
	_ = viper.ReadInConfig()

	return fromViper()
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("parking.total_slots", 6)
	viper.SetDefault("parking.rate_per_minute", "2")
	viper.SetDefault("parking.decision_timeout", 3*time.Second)
	viper.SetDefault("parking.currency", "NGN")
	viper.SetDefault("parking.store", StorePostgres)
	viper.SetDefault("parking.event_queue", "parking_events")
	viper.SetDefault("parking.event_queue_cap", 1000)
}

func fromViper() (*Config, error) {
	rate, err := decimal.NewFromString(viper.GetString("parking.rate_per_minute"))
	if err != nil {
		return nil, fmt.Errorf("invalid parking.rate_per_minute: %w", err)
	}

	cfg := &Config{
		Port:      viper.GetString("server.port"),
		LogFormat: viper.GetString("log.format"),
		JWTSecret: viper.GetString("jwt.secret_key"),
		Parking: ParkingConfig{
			TotalSlots:      viper.GetInt("parking.total_slots"),
			RatePerMinute:   rate,
			DecisionTimeout: viper.GetDuration("parking.decision_timeout"),
			Currency:        viper.GetString("parking.currency"),
			Store:           viper.GetString("parking.store"),
			EventQueue:      viper.GetString("parking.event_queue"),
			EventQueueCap:   viper.GetInt64("parking.event_queue_cap"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	p := c.Parking
	if p.TotalSlots <= 0 {
		return fmt.Errorf("parking.total_slots must be positive, got %d", p.TotalSlots)
	}
	if !p.RatePerMinute.IsPositive() {
		return fmt.Errorf("parking.rate_per_minute must be positive, got %s", p.RatePerMinute)
	}
	if !models.FitsMoneyScale(p.RatePerMinute) {
		return fmt.Errorf("parking.rate_per_minute allows at most %d decimal places, got %s", models.MoneyScale, p.RatePerMinute)
	}
	if p.DecisionTimeout <= 0 {
		return fmt.Errorf("parking.decision_timeout must be positive, got %v", p.DecisionTimeout)
	}
	if p.Store != StorePostgres && p.Store != StoreMemory {
		return fmt.Errorf("parking.store must be %q or %q, got %q", StorePostgres, StoreMemory, p.Store)
	}
	if p.EventQueueCap <= 0 {
		return fmt.Errorf("parking.event_queue_cap must be positive, got %d", p.EventQueueCap)
	}
	return nil
}
