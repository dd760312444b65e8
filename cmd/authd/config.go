package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"

	auth "github.com/neuronurture/go-auth"
	"github.com/neuronurture/go-auth/repository"
)

const (
	refreshStoreSQL   = "sql"
	refreshStoreRedis = "redis"
)

type DatabaseConfig struct {
	Driver  string `env:"DRIVER" envDefault:"sqlite"`
	DSN     string `env:"DSN" envDefault:"file:auth.db?cache=shared"`
	Migrate bool   `env:"MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"auth:"`
}

type OIDCConfig struct {
	Provider  string `env:"PROVIDER" envDefault:"google"`
	Issuer    string `env:"ISSUER"`
	Audience  string `env:"AUDIENCE"`
	JWKSetURL string `env:"JWKS_URL"`
}

// Enabled reports whether federated login is configured
func (c OIDCConfig) Enabled() bool {
	return c.JWKSetURL != ""
}

type Config struct {
	Addr         string `env:"AUTH_ADDR" envDefault:":8080"`
	Debug        bool   `env:"AUTH_DEBUG"`
	LogLevel     string `env:"AUTH_LOG_LEVEL" envDefault:"info"`
	RefreshStore string `env:"AUTH_REFRESH_STORE" envDefault:"sql"`

	Auth     auth.Options   `envPrefix:"AUTH_"`
	Database DatabaseConfig `envPrefix:"AUTH_DB_"`
	Redis    RedisConfig    `envPrefix:"AUTH_REDIS_"`
	OIDC     OIDCConfig     `envPrefix:"AUTH_OIDC_"`
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.RefreshStore, validation.In(refreshStoreSQL, refreshStoreRedis)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Database, validation.By(func(value any) error {
			db, _ := value.(DatabaseConfig)
			return validation.ValidateStruct(&db,
				validation.Field(&db.Driver, validation.Required, validation.In(repository.DriverPostgres, repository.DriverSQLite)),
				validation.Field(&db.DSN, validation.Required),
			)
		})),
	)
}
