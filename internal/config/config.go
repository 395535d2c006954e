// Package config loads server settings from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory. Struct tags drive parsing; Validate
// enforces the rules tags cannot express.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sakif/feed-core/internal/auth"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownDriver   = errors.New("config: DB_DRIVER must be sqlite or postgres")
	ErrMissingDatabase = errors.New("config: DATABASE_URL is required for the postgres driver")
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/feed.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	AccessTokenSecret  string `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string `env:"REFRESH_TOKEN_SECRET,required"`

	GoogleClientID       string        `env:"GOOGLE_CLIENT_ID,required"`
	OAuthProviderTimeout time.Duration `env:"OAUTH_PROVIDER_TIMEOUT" envDefault:"5s"`

	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	// The .env file is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := auth.CheckSecrets(c.AccessTokenSecret, c.RefreshTokenSecret); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabase
		}
	default:
		return ErrUnknownDriver
	}

	if c.OAuthProviderTimeout <= 0 {
		return fmt.Errorf("config: OAUTH_PROVIDER_TIMEOUT must be positive, got %s", c.OAuthProviderTimeout)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
