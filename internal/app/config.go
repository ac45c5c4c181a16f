// Package app loads configuration and assembles the server components.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"txcalc/internal/domain/policy"
	"txcalc/internal/domain/transaction"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development" validate:"oneof=development test staging production"`
	AppPort         int           `envconfig:"APP_PORT" default:"8080" validate:"min=1,max=65535"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// FrappeURL is the ERP site serving master data; empty runs offline
	FrappeURL       string        `envconfig:"FRAPPE_URL" validate:"omitempty,url"`
	FrappeAPIKey    string        `envconfig:"FRAPPE_API_KEY" validate:"required_with=FrappeAPISecret"`
	FrappeAPISecret string        `envconfig:"FRAPPE_API_SECRET" validate:"required_with=FrappeAPIKey"`
	FrappeTimeout   time.Duration `envconfig:"FRAPPE_TIMEOUT" default:"15s"`

	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	MaxSessions  int           `envconfig:"MAX_SESSIONS" default:"1000" validate:"min=0"`

	// RedisAddr enables the remote call cache when set
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	// DatabaseURL enables the PostgreSQL store when set
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	OutboxInterval time.Duration `envconfig:"OUTBOX_INTERVAL" default:"5s"`

	// AccountsFrozenUntil blocks saving and submitting documents dated on or before it
	AccountsFrozenUntil string        `envconfig:"ACCOUNTS_FROZEN_UNTIL" validate:"omitempty,datetime=2006-01-02"`
	BackdatedWarning    time.Duration `envconfig:"BACKDATED_WARNING" default:"720h"`
	StrictPeriod        bool          `envconfig:"STRICT_PERIOD" default:"true"`
	RulesFile           string        `envconfig:"RULES_FILE"`

	AmountPrecision         int32           `envconfig:"AMOUNT_PRECISION" default:"2" validate:"min=0,max=9"`
	RatePrecision           int32           `envconfig:"RATE_PRECISION" default:"2" validate:"min=0,max=9"`
	QtyPrecision            int32           `envconfig:"QTY_PRECISION" default:"6" validate:"min=0,max=9"`
	PercentPrecision        int32           `envconfig:"PERCENT_PRECISION" default:"6" validate:"min=0,max=9"`
	ConversionRatePrecision int32           `envconfig:"CONVERSION_RATE_PRECISION" default:"9" validate:"min=0,max=12"`
	RoundingFraction        decimal.Decimal `envconfig:"ROUNDING_FRACTION" default:"1"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.RoundingFraction.IsPositive() {
		return errors.New("invalid config: ROUNDING_FRACTION must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// IsDevelopment returns true for local development.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}

// PeriodPolicy returns the accounting period policy. Strict freezes drafts
// too; otherwise only submission is blocked and backdated documents warn.
func (c *Config) PeriodPolicy() policy.PeriodPolicy {
	if c.AccountsFrozenUntil == "" {
		if c.StrictPeriod {
			return policy.OpenPolicy{}
		}
		return policy.NewFlexiblePolicy(c.BackdatedWarning, time.Time{})
	}
	until, _ := time.Parse("2006-01-02", c.AccountsFrozenUntil)
	if c.StrictPeriod {
		return policy.NewStrictPolicy(until)
	}
	return policy.NewFlexiblePolicy(c.BackdatedWarning, until)
}

// Precision returns the rounding precision of the calculator.
func (c *Config) Precision() transaction.Precision {
	return transaction.Precision{
		Amount:           c.AmountPrecision,
		Rate:             c.RatePrecision,
		Qty:              c.QtyPrecision,
		Percent:          c.PercentPrecision,
		ConversionRate:   c.ConversionRatePrecision,
		RoundingFraction: c.RoundingFraction,
	}
}
