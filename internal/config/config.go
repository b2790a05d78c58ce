package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Client      ClientConfig      `mapstructure:"client"`
	Development DevelopmentConfig `mapstructure:"development"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Store        string        `mapstructure:"store"`
	SnapshotPath string        `mapstructure:"snapshot_path"`
	DatabaseURL  string        `mapstructure:"database_url"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl"`
}

type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PlayerID       string        `mapstructure:"player_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type DevelopmentConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	// devSecret signs tokens when debug is on and no secret is configured.
	devSecret = "cardchess-development-secret"
)

// Load reads config.yaml from . or ./config, overlaid with CARDCHESS_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CARDCHESS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.store", StoreMemory)
	v.SetDefault("server.snapshot_path", "")
	v.SetDefault("server.database_url", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.access_ttl", 15*time.Minute)
	v.SetDefault("server.refresh_ttl", 168*time.Hour)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.player_id", "")
	v.SetDefault("client.poll_interval", 2*time.Second)
	v.SetDefault("client.request_timeout", 2*time.Second)
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.retry_delay", time.Second)

	v.SetDefault("development.debug", false)
	v.SetDefault("development.log_level", "info")
}

func (c *Config) validate() error {
	switch c.Server.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Server.DatabaseURL == "" {
			return errors.New("server.database_url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown server.store %q", c.Server.Store)
	}

	if c.Client.PollInterval <= 0 {
		return errors.New("client.poll_interval must be positive")
	}
	if c.Client.MaxRetries < 0 {
		return errors.New("client.max_retries must not be negative")
	}
	return nil
}

// Secret returns the token signing secret. Outside debug mode a secret
// must be configured.
func (c *Config) Secret() ([]byte, error) {
	if c.Server.JWTSecret != "" {
		return []byte(c.Server.JWTSecret), nil
	}
	if c.Development.Debug {
		return []byte(devSecret), nil
	}
	return nil, errors.New("server.jwt_secret is required unless development.debug is set")
}
