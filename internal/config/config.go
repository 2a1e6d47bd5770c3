// Package config loads benchcore settings from an optional config file,
// BENCHCORE_* environment variables and built-in defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BENCHCORE_STORAGE_DRIVER.
const EnvPrefix = "BENCHCORE"

type Config struct {
	Storage Storage `mapstructure:"storage"`
	Blob    Blob    `mapstructure:"blob"`
	Events  Events  `mapstructure:"events"`
	HTTP    HTTP    `mapstructure:"http"`
	Policy  Policy  `mapstructure:"policy"`
	Log     Log     `mapstructure:"log"`
	Sweep   Sweep   `mapstructure:"sweep"`
}

// Storage selects the persistent store backend.
type Storage struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Redis       Redis  `mapstructure:"redis"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Blob configures the snapshot archive.
type Blob struct {
	Driver string `mapstructure:"driver"`
	Prefix string `mapstructure:"prefix"`
	S3     S3     `mapstructure:"s3"`
}

type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Events configures the AMQP publisher. An empty URL disables publishing.
type Events struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// Policy holds task generation thresholds and scheduling defaults.
type Policy struct {
	LowStockThreshold      string `mapstructure:"low_stock_threshold"`
	LowStockDueDays        int    `mapstructure:"low_stock_due_days"`
	ExpiringWindowDays     int    `mapstructure:"expiring_window_days"`
	ValidationHorizonDays  int    `mapstructure:"validation_horizon_days"`
	ValidationPeriodDays   int    `mapstructure:"validation_period_days"`
	CompositeShelfLifeDays int    `mapstructure:"composite_shelf_life_days"`
}

// Threshold parses the default low-stock threshold.
func (p Policy) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(p.LowStockThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("policy.low_stock_threshold: %w", err)
	}
	return d, nil
}

// Log selects the slog level and handler. Trace additionally writes one JSON
// span per operation to stderr.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Trace  bool   `mapstructure:"trace"`
}

// Sweep controls the periodic task sweep run by `benchcore serve`. A zero
// interval disables it.
type Sweep struct {
	Interval time.Duration `mapstructure:"interval"`
}

var defaults = map[string]any{
	"storage.driver":                   "sqlite",
	"storage.sqlite_path":              "benchcore.db",
	"storage.postgres_dsn":             "",
	"storage.redis.addr":               "localhost:6379",
	"storage.redis.password":           "",
	"storage.redis.db":                 0,
	"storage.redis.prefix":             "benchcore",
	"blob.driver":                      "memory",
	"blob.prefix":                      "snapshots/",
	"blob.s3.bucket":                   "",
	"blob.s3.region":                   "us-east-1",
	"blob.s3.endpoint":                 "",
	"blob.s3.path_style":               false,
	"blob.s3.access_key_id":            "",
	"blob.s3.secret_access_key":        "",
	"events.amqp_url":                  "",
	"events.exchange":                  "benchcore.events",
	"http.addr":                        ":8080",
	"policy.low_stock_threshold":       "100",
	"policy.low_stock_due_days":        7,
	"policy.expiring_window_days":      14,
	"policy.validation_horizon_days":   30,
	"policy.validation_period_days":    365,
	"policy.composite_shelf_life_days": 14,
	"log.level":                        "info",
	"log.format":                       "json",
	"log.trace":                        false,
	"sweep.interval":                   "1h",
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings that cannot be served.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if _, err := c.Policy.Threshold(); err != nil {
		return err
	}
	if c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	return nil
}
