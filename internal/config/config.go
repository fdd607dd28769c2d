package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// MinSecretLength is the shortest accepted token signing secret, in bytes.
const MinSecretLength = 32

// MaxPasswordBytes is the most bcrypt will hash.
const MaxPasswordBytes = 72

type Config struct {
	APIPort  int            `mapstructure:"apiPort"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Tokens   TokensConfig   `mapstructure:"tokens"`
	Password PasswordConfig `mapstructure:"password"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxConns        int           `mapstructure:"maxConns"`
	MaxIdle         int           `mapstructure:"maxIdle"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type SessionConfig struct {
	// Store selects the session backend: "sql" or "redis".
	Store           string        `mapstructure:"store"`
	CookieName      string        `mapstructure:"cookieName"`
	Secure          bool          `mapstructure:"secure"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type TokensConfig struct {
	Secret               string        `mapstructure:"secret"`
	PasswordResetTTL     time.Duration `mapstructure:"passwordResetTTL"`
	EmailConfirmationTTL time.Duration `mapstructure:"emailConfirmationTTL"`
}

type PasswordConfig struct {
	MinLength  int `mapstructure:"minLength"`
	BcryptCost int `mapstructure:"bcryptCost"`
}

type NotifyConfig struct {
	// Backend selects where notification payloads go: "log" or "s3".
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
	S3      S3Config      `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	Prefix          string `mapstructure:"prefix"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("apiPort", 8080)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "data/backend.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "backend")
	v.SetDefault("database.user", "backend")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.maxIdle", 5)
	v.SetDefault("database.connMaxLifetime", time.Hour)

	v.SetDefault("session.store", "sql")
	v.SetDefault("session.cookieName", "session")
	v.SetDefault("session.secure", os.Getenv("BACKEND_ENV") == "prod")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanupInterval", time.Hour)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "sess")

	v.SetDefault("tokens.secret", "")
	v.SetDefault("tokens.passwordResetTTL", 15*time.Minute)
	v.SetDefault("tokens.emailConfirmationTTL", 24*time.Hour)

	v.SetDefault("password.minLength", 8)
	v.SetDefault("password.bcryptCost", 12)

	v.SetDefault("notify.backend", "log")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.s3.endpoint", "")
	v.SetDefault("notify.s3.region", "us-east-1")
	v.SetDefault("notify.s3.bucket", "")
	v.SetDefault("notify.s3.accessKeyId", "")
	v.SetDefault("notify.s3.secretAccessKey", "")
	v.SetDefault("notify.s3.prefix", "outbox")

	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:*", "http://127.0.0.1:*"})
}

// LoadConfig loads the configuration from file and environment variables.
// Environment variables use the BACKEND_ prefix with dots replaced by
// underscores, e.g. BACKEND_TOKENS_SECRET.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BACKEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Warn("could not read config file, using defaults and environment", "path", path, "error", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded",
		"apiPort", cfg.APIPort,
		"database", cfg.Database.Type,
		"sessionStore", cfg.Session.Store,
		"notify", cfg.Notify.Backend,
	)
	return &cfg, nil
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.APIPort <= 0 {
		return fmt.Errorf("apiPort must be positive, got %d", c.APIPort)
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}
	switch c.Session.Store {
	case "sql", "redis":
	default:
		return fmt.Errorf("unsupported session store: %q", c.Session.Store)
	}
	switch c.Notify.Backend {
	case "log":
	case "s3":
		if c.Notify.S3.Bucket == "" {
			return errors.New("notify.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported notify backend: %q", c.Notify.Backend)
	}
	if len(c.Tokens.Secret) < MinSecretLength {
		return fmt.Errorf("tokens.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Tokens.PasswordResetTTL <= 0 || c.Tokens.EmailConfirmationTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > MaxPasswordBytes {
		return fmt.Errorf("password.minLength must be between 1 and %d", MaxPasswordBytes)
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("password.bcryptCost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Password.BcryptCost)
	}
	return nil
}
