package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	defaultJWTSecret = "dev-secret"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	CORS     CORSConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name            string        `env:"APP_NAME"             envDefault:"task-service"`
	Env             string        `env:"APP_ENV"              envDefault:"development"`
	Host            string        `env:"APP_HOST"             envDefault:"0.0.0.0"`
	Port            string        `env:"APP_PORT"             envDefault:"8080"`
	Version         string        `env:"APP_VERSION"          envDefault:"dev"`
	BasePath        string        `env:"APP_BASE_PATH"        envDefault:"/api"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"     envDefault:"15s"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN           string        `env:"POSTGRES_DSN"`
	MaxConns      int32         `env:"POSTGRES_MAX_CONNS"      envDefault:"10"`
	MinConns      int32         `env:"POSTGRES_MIN_CONNS"      envDefault:"2"`
	RunMigrations bool          `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdle   time.Duration `env:"POSTGRES_CONN_MAX_IDLE"  envDefault:"30s"`
	ConnMaxLife   time.Duration `env:"POSTGRES_CONN_MAX_LIFE"  envDefault:"5m"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// CacheConfig tunes the task statistics cache.
type CacheConfig struct {
	StatsTTL  time.Duration `env:"CACHE_STATS_TTL"  envDefault:"5m"`
	KeyPrefix string        `env:"CACHE_KEY_PREFIX" envDefault:"task-service:"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"       envDefault:"dev-secret"`
	TokenTTL   time.Duration `env:"AUTH_TOKEN_TTL"   envDefault:"24h"`
	BcryptCost int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:5174"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.App.BasePath = normalizeBasePath(cfg.App.BasePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

func normalizeBasePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimRight(path, "/")
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
