package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	RemotePostgREST = "postgrest"
	RemotePostgres  = "postgres"
	RemoteMemory    = "memory"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     string `envconfig:"PORT" default:"8080"`
	ShopID   string `envconfig:"SHOP_ID" default:"main-shop"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"inventory.db"`

	RemoteBackend    string        `envconfig:"REMOTE_BACKEND" default:"postgrest"`
	RemoteURL        string        `envconfig:"REMOTE_URL"`
	RemoteAPIKey     string        `envconfig:"REMOTE_API_KEY"`
	RemoteJWTSecret  string        `envconfig:"REMOTE_JWT_SECRET"`
	RemoteRole       string        `envconfig:"REMOTE_ROLE" default:"service_role"`
	RemoteTokenTTL   time.Duration `envconfig:"REMOTE_TOKEN_TTL" default:"10m"`
	RemoteTimeout    time.Duration `envconfig:"REMOTE_TIMEOUT" default:"15s"`
	RemoteDSN        string        `envconfig:"REMOTE_DSN"`
	RemoteAutoSchema bool          `envconfig:"REMOTE_AUTO_SCHEMA" default:"false"`

	StartOnline   bool          `envconfig:"START_ONLINE" default:"true"`
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"15s"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	ReportTTL     time.Duration `envconfig:"REPORT_TTL" default:"168h"`
	LeaseTTL      time.Duration `envconfig:"LEASE_TTL" default:"2m"`

	BackgroundSyncCron string `envconfig:"BACKGROUND_SYNC_CRON"`

	SyncRateLimit int `envconfig:"SYNC_RATE_LIMIT" default:"6"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.RemoteBackend = strings.ToLower(strings.TrimSpace(cfg.RemoteBackend))
	cfg.RemoteJWTSecret = strings.TrimSpace(cfg.RemoteJWTSecret)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.RemoteBackend {
	case RemotePostgREST:
		if c.RemoteURL == "" {
			return errors.New("config: REMOTE_URL is required for the postgrest remote")
		}
		if len(c.RemoteJWTSecret) < 32 {
			return errors.New("config: REMOTE_JWT_SECRET must be set and at least 32 characters")
		}
	case RemotePostgres:
		if c.RemoteDSN == "" {
			return errors.New("config: REMOTE_DSN is required for the postgres remote")
		}
	case RemoteMemory:
	default:
		return fmt.Errorf("config: unknown REMOTE_BACKEND %q", c.RemoteBackend)
	}

	if c.ProbeInterval <= 0 || c.ProbeTimeout <= 0 {
		return errors.New("config: PROBE_INTERVAL and PROBE_TIMEOUT must be positive")
	}
	if c.SyncRateLimit < 1 {
		return errors.New("config: SYNC_RATE_LIMIT must be at least 1")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
