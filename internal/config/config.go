// Package config loads the tallyd daemon configuration from a YAML file and
// TALLY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TALLY_DATABASE_DSN.
const EnvPrefix = "TALLY"

type Config struct {
	Env      string         `mapstructure:"env"`
	Database DatabaseConfig `mapstructure:"database"`
	Proof    ProofConfig    `mapstructure:"proof"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Settle   SettleConfig   `mapstructure:"settle"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // memory, postgres, sqlite or mongo
	DSN      string `mapstructure:"dsn"`
	Name     string `mapstructure:"name"` // mongo database
	PoolSize int    `mapstructure:"pool_size"`
}

type ProofConfig struct {
	Backend string   `mapstructure:"backend"` // local, s3 or memory
	Dir     string   `mapstructure:"dir"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

// RedisConfig enables the distributed settlement lock. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SettleConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	OnStart     bool          `mapstructure:"on_start"`
}

type LedgerConfig struct {
	Currency string `mapstructure:"currency"`
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads path, or tally.yaml from . and ./configs when path is empty.
// A missing search-path file is not an error; defaults and env apply.
// A non-empty env overrides the env key.
func Load(path, env string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tally")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if env != "" {
		v.Set("env", env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.name", "tally")
	v.SetDefault("database.pool_size", 10)

	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = "./data/uploads"
	}
	v.SetDefault("proof.backend", "local")
	v.SetDefault("proof.dir", dir)
	v.SetDefault("proof.s3.bucket", "")
	v.SetDefault("proof.s3.region", "")
	v.SetDefault("proof.s3.endpoint", "")
	v.SetDefault("proof.s3.access_key", "")
	v.SetDefault("proof.s3.secret_key", "")
	v.SetDefault("proof.s3.prefix", "")
	v.SetDefault("proof.s3.path_style", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("settle.interval", "24h")
	v.SetDefault("settle.concurrency", 8)
	v.SetDefault("settle.on_start", false)

	v.SetDefault("ledger.currency", "brl")
	v.SetDefault("ledger.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", ":9090")
}

// Validate rejects unknown backends and unusable settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite", "mongo":
		if c.Database.DSN == "" {
			return fmt.Errorf("config: database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}

	switch c.Proof.Backend {
	case "local", "memory":
	case "s3":
		if c.Proof.S3.Bucket == "" {
			return errors.New("config: proof.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown proof.backend %q", c.Proof.Backend)
	}

	if c.Settle.Interval <= 0 {
		return errors.New("config: settle.interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves ledger.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: ledger.timezone: %w", err)
	}
	return loc, nil
}
