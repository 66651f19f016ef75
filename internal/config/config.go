package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete service configuration. Values come from the
// environment (prefix LICD) with an optional config.yaml underneath;
// environment always wins.
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Database    DatabaseConfig    `yaml:"database" envconfig:"DATABASE"`
	Admin       AdminConfig       `yaml:"admin" envconfig:"ADMIN"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" envconfig:"RATELIMIT"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" envconfig:"OBJECTSTORE"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects and configures the licence store backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory store is for
	// development only; it loses all licences on restart.
	Driver  string `yaml:"driver" envconfig:"DRIVER" default:"postgres"`
	URL     string `yaml:"url" envconfig:"URL"`
	Migrate bool   `yaml:"migrate" envconfig:"MIGRATE" default:"true"`
}

// AdminConfig holds the pre-shared administrator credential. Exactly one
// of Key and KeyHash should be set; KeyHash (bcrypt) is preferred so the
// secret never sits in the environment in the clear.
type AdminConfig struct {
	Key     string `yaml:"key" envconfig:"API_KEY"`
	KeyHash string `yaml:"key_hash" envconfig:"API_KEY_HASH"`
}

// RateLimitConfig sets the per-origin request budgets. These protect
// against code/HWID enumeration; they are availability policy, not a
// correctness mechanism.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	ActivatePerMinute int  `yaml:"activate_per_minute" envconfig:"ACTIVATE_PER_MINUTE" default:"10"`
	ValidatePerMinute int  `yaml:"validate_per_minute" envconfig:"VALIDATE_PER_MINUTE" default:"30"`
}

// ObjectStoreConfig configures the external download-link signer.
type ObjectStoreConfig struct {
	Enabled   bool          `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Endpoint  string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	Bucket    string        `yaml:"bucket" envconfig:"BUCKET"`
	AccessKey string        `yaml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	UseSSL    bool          `yaml:"use_ssl" envconfig:"USE_SSL" default:"true"`
	LinkTTL   time.Duration `yaml:"link_ttl" envconfig:"LINK_TTL" default:"120s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/licence-server.log"`
}

// Load reads configuration from an optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	var cfg Config

	if path := configFilePath(); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Environment overrides file values.
	if err := envconfig.Process("LICD", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	if c.Admin.Key == "" && c.Admin.KeyHash == "" {
		return fmt.Errorf("an admin API key (or bcrypt hash) must be configured")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.ActivatePerMinute <= 0 || c.RateLimit.ValidatePerMinute <= 0 {
			return fmt.Errorf("rate limits must be positive when enabled")
		}
	}
	if c.ObjectStore.Enabled {
		if c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object store endpoint and bucket are required when link issuance is enabled")
		}
		if c.ObjectStore.LinkTTL <= 0 {
			return fmt.Errorf("object store link ttl must be positive")
		}
	}
	return nil
}

// Default returns the configuration used when nothing is provided.
// Primarily a convenience for tests.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "memory",
			Migrate: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			ActivatePerMinute: 10,
			ValidatePerMinute: 30,
		},
		ObjectStore: ObjectStoreConfig{
			UseSSL:  true,
			LinkTTL: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}
