// Package config loads storefront settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Cart     CartConfig     `yaml:"cart"`
	Cache    CacheConfig    `yaml:"cache"`
	Client   ClientConfig   `yaml:"client"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	SecureCookies   bool   `yaml:"secure_cookies"`
}

type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	MaxConnLifetime string `yaml:"max_conn_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig configures event publishing. An empty URL disables events.
type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type CartConfig struct {
	Currency string `yaml:"currency"`
	// Shipping is the flat shipping amount shown on the cart page.
	Shipping string `yaml:"shipping"`
	Workers  int    `yaml:"workers"`
}

type CacheConfig struct {
	NumCounters int64  `yaml:"num_counters"`
	MaxCost     int64  `yaml:"max_cost"`
	TTL         string `yaml:"ttl"`
}

// ClientConfig is used by the cart commands talking to a running server.
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			ShutdownTimeout: "10s",
		},
		Postgres: PostgresConfig{
			DSN:             "postgres://localhost:5432/storefront?sslmode=disable",
			MaxConns:        10,
			MaxConnLifetime: "1h",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			Name: "storefront",
		},
		Cart: CartConfig{
			Currency: string(stripe.CurrencyUSD),
			Shipping: "10",
			Workers:  4,
		},
		Cache: CacheConfig{
			NumCounters: 10_000,
			MaxCost:     1_000,
			TTL:         "5m",
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: "10s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STOREFRONT_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("STOREFRONT_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required (set DATABASE_URL)")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required (set REDIS_ADDR)")
	}
	if len(c.Cart.Currency) != 3 {
		return fmt.Errorf("invalid cart currency: %q", c.Cart.Currency)
	}
	if _, err := c.ShippingAmount(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	for name, v := range map[string]string{
		"http.read_timeout":          c.HTTP.ReadTimeout,
		"http.write_timeout":         c.HTTP.WriteTimeout,
		"http.shutdown_timeout":      c.HTTP.ShutdownTimeout,
		"postgres.max_conn_lifetime": c.Postgres.MaxConnLifetime,
		"cache.ttl":                  c.Cache.TTL,
		"client.timeout":             c.Client.Timeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// Currency returns the cart currency in stripe's lower-case form.
func (c *Config) Currency() stripe.Currency {
	return stripe.Currency(strings.ToLower(c.Cart.Currency))
}

// ShippingAmount parses the flat shipping amount.
func (c *Config) ShippingAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Cart.Shipping)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid cart.shipping %q: %w", c.Cart.Shipping, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("cart.shipping must not be negative")
	}
	return d, nil
}

func duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func (c *HTTPConfig) GetReadTimeout() time.Duration     { return duration(c.ReadTimeout, 15*time.Second) }
func (c *HTTPConfig) GetWriteTimeout() time.Duration    { return duration(c.WriteTimeout, 15*time.Second) }
func (c *HTTPConfig) GetShutdownTimeout() time.Duration { return duration(c.ShutdownTimeout, 10*time.Second) }

func (c *PostgresConfig) GetMaxConnLifetime() time.Duration {
	return duration(c.MaxConnLifetime, time.Hour)
}

func (c *CacheConfig) GetTTL() time.Duration {
	return duration(c.TTL, 5*time.Minute)
}

func (c *ClientConfig) GetTimeout() time.Duration {
	return duration(c.Timeout, 10*time.Second)
}

// NewLogger builds the process logger from the logging settings.
func (c *LoggingConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
