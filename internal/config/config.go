package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("config: JWT_SECRET is required")

// bcrypt work factor bounds: 10 is the floor for stored credentials, 31 is
// bcrypt's own maximum.
const (
	minBcryptCost = 10
	maxBcryptCost = 31
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	// DatabaseURL wins over the DB_* parts when set.
	DatabaseURL string   `env:"DATABASE_URL"`
	DB          DBConfig `envPrefix:"DB_"`
	AutoMigrate bool     `env:"AUTO_MIGRATE" envDefault:"true"`

	JWTSecret  string `env:"JWT_SECRET"`
	BcryptCost int    `env:"BCRYPT_COST" envDefault:"10"`

	Redis RedisConfig `envPrefix:"REDIS_"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	ProfileCacheTTL    time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"30s"`

	Admin AdminConfig `envPrefix:"ADMIN_"`

	Worker WorkerConfig `envPrefix:"WORKER_"`
}

type DBConfig struct {
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"userhub"`
	Password string `env:"PASSWORD" envDefault:"userhub"`
	Name     string `env:"NAME" envDefault:"userhub"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"5"`
}

// RedisConfig is optional: with no Addr the API publishes nothing.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// AdminConfig describes the account bootstrapped at startup. Empty Username
// or Password disables the bootstrap.
type AdminConfig struct {
	Username   string `env:"USERNAME"`
	Email      string `env:"EMAIL"`
	Password   string `env:"PASSWORD"`
	FirstNames string `env:"FIRST_NAMES" envDefault:"Admin"`
	LastNames  string `env:"LAST_NAMES" envDefault:"User"`
}

func (a AdminConfig) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

type WorkerConfig struct {
	Group      string `env:"GROUP" envDefault:"notifications"`
	Consumer   string `env:"CONSUMER" envDefault:"worker-1"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8081"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("config: DB_MAX_CONNS must be positive")
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		return fmt.Errorf("config: BCRYPT_COST must be between %d and %d, got %d", minBcryptCost, maxBcryptCost, c.BcryptCost)
	}
	return nil
}

func (c Config) DBURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     c.DB.Host + ":" + c.DB.Port,
		Path:     "/" + c.DB.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.DB.SSLMode),
	}

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
