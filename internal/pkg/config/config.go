// Package config loads service settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/zenspa/identity-service/internal/pkg/retry"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port        string   `env:"PORT, default=8080"`
	Env         string   `env:"ENV, default=development"`
	Debug       bool     `env:"DEBUG, default=false"`
	LogLevel    string   `env:"LOG_LEVEL, default=info"`
	LogPretty   bool     `env:"LOG_PRETTY, default=false"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=http://localhost:3000"`

	Auth     AuthConfig
	Store    StoreConfig
	Redis    RedisConfig
	Retry    RetryConfig
	Security SecurityEventConfig
}

type AuthConfig struct {
	IssuerURL       string        `env:"AUTH_ISSUER_URL"`
	JWKSURL         string        `env:"AUTH_JWKS_URL"`
	Audience        string        `env:"AUTH_AUDIENCE, default=authenticated"`
	Algorithms      []string      `env:"AUTH_ALGORITHMS, default=RS256,ES256"`
	Leeway          time.Duration `env:"AUTH_LEEWAY, default=30s"`
	KeyTTL          time.Duration `env:"AUTH_KEY_TTL, default=1h"`
	KeyFetchTimeout time.Duration `env:"AUTH_KEY_FETCH_TIMEOUT, default=10s"`
	// JWTSecret switches verification to a shared HS256 secret instead of
	// the published key set.
	JWTSecret     string `env:"AUTH_JWT_SECRET"`
	WebhookSecret string `env:"AUTH_WEBHOOK_SECRET"`
	CookieName    string `env:"AUTH_COOKIE_NAME, default=access_token"`
}

type StoreConfig struct {
	Driver          string `env:"STORE_DRIVER, default=postgres"`
	PostgresURL     string `env:"POSTGRES_URL"`
	PostgresMaxConn int32  `env:"POSTGRES_MAX_CONNS, default=10"`
	PostgresMigrate bool   `env:"POSTGRES_MIGRATE, default=true"`
	MongoURI        string `env:"MONGO_URI, default=mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDatabase   string `env:"MONGO_DATABASE, default=identity"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR, default=localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB, default=0"`
	AuthzTTL time.Duration `env:"AUTHZ_CACHE_TTL, default=15m"`
	DedupTTL time.Duration `env:"WEBHOOK_DEDUP_TTL, default=24h"`
}

type RetryConfig struct {
	Attempts int           `env:"CONNECT_RETRY_ATTEMPTS, default=3"`
	MinWait  time.Duration `env:"CONNECT_RETRY_MIN_WAIT, default=1s"`
	MaxWait  time.Duration `env:"CONNECT_RETRY_MAX_WAIT, default=10s"`
}

type SecurityEventConfig struct {
	Workers int `env:"SECURITY_EVENT_WORKERS, default=4"`
	Buffer  int `env:"SECURITY_EVENT_BUFFER, default=256"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper, fills derived values and
// validates the result.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Auth.IssuerURL = strings.TrimRight(cfg.Auth.IssuerURL, "/")
	if cfg.Auth.JWKSURL == "" && cfg.Auth.IssuerURL != "" {
		cfg.Auth.JWKSURL = cfg.Auth.IssuerURL + "/auth/v1/jwks"
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.Algorithms = []string{"HS256"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, mongo", c.Store.Driver))
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("AUTH_ISSUER_URL or AUTH_JWKS_URL is required"))
	}
	if c.Security.Workers <= 0 || c.Security.Buffer <= 0 {
		errs = append(errs, errors.New("SECURITY_EVENT_WORKERS and SECURITY_EVENT_BUFFER must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// RetryPolicy converts the connect retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.Retry.Attempts, MinWait: c.Retry.MinWait, MaxWait: c.Retry.MaxWait}
}
