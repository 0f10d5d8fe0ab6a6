package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	NATS     NATSConfig
}

type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type NATSConfig struct {
	URL string
}

// Load читает .env (если файл есть) и переменные окружения.
// Уже заданные переменные окружения не перезаписываются.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из getenv и подставляет значения по умолчанию.
func FromEnv(getenv func(string) string) (*Config, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		v := getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		v := getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid number %q", key, v))
			return def
		}
		return n
	}
	boolean := func(key string, def bool) bool {
		v := getenv(key)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid bool %q", key, v))
			return def
		}
		return b
	}
	str := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:      str("APP_ENV", "development"),
		LogLevel: getenv("LOG_LEVEL"),
		Server: ServerConfig{
			Address:         str("SERVER_ADDRESS", "0.0.0.0:8080"),
			ReadTimeout:     duration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    duration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:          getenv("POSTGRES_CONN"),
			MaxOpenConns: integer("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: integer("DB_MAX_IDLE_CONNS", 5),
			AutoMigrate:  boolean("AUTO_MIGRATE", true),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET"),
			TokenTTL:  duration("JWT_TTL", 24*time.Hour),
		},
		NATS: NATSConfig{URL: getenv("NATS_URL")},
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireDatabase проверяет настройки для команд, которым нужна БД.
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return errors.New("POSTGRES_CONN env variable is not set")
	}
	return nil
}

// RequireServer: проверки перед запуском HTTP-сервера.
func (c *Config) RequireServer() error {
	if err := c.RequireDatabase(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET env variable is not set")
	}
	if c.Env == "production" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}

// Log выводит конфигурацию без секретов.
func (c *Config) Log(log *zap.Logger) {
	log.Info("configuration",
		zap.String("env", c.Env),
		zap.String("address", c.Server.Address),
		zap.Duration("read_timeout", c.Server.ReadTimeout),
		zap.Duration("write_timeout", c.Server.WriteTimeout),
		zap.Bool("database_configured", c.Database.DSN != ""),
		zap.Int("db_max_open_conns", c.Database.MaxOpenConns),
		zap.Bool("auto_migrate", c.Database.AutoMigrate),
		zap.Duration("token_ttl", c.Auth.TokenTTL),
		zap.Bool("nats_enabled", c.NATS.URL != ""),
	)
}
