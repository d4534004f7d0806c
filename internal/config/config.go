// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"heartline/internal/observability"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTTTLHours int    `mapstructure:"JWT_TTL_HOURS"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	RedisURL         string `mapstructure:"REDIS_URL"`
	FeedCacheTTLSecs int    `mapstructure:"FEED_CACHE_TTL_SECONDS"`
	AllowedOrigins   string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags     string `mapstructure:"FEATURE_FLAGS"`
	LikeRateLimit    int    `mapstructure:"LIKE_RATE_LIMIT"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	// Client settings used by feedctl.
	APIBaseURL    string `mapstructure:"API_BASE_URL"`
	APIToken      string `mapstructure:"API_TOKEN"`
	LikeTimeoutMS int    `mapstructure:"LIKE_TIMEOUT_MS"`
}

var defaults = map[string]any{
	"APP_ENV":                "development",
	"PORT":                   "8375",
	"LOG_LEVEL":              "info",
	"JWT_SECRET":             defaultJWTSecret,
	"JWT_TTL_HOURS":          72,
	"DB_DRIVER":              "postgres",
	"DB_HOST":                "localhost",
	"DB_PORT":                "5432",
	"DB_USER":                "user",
	"DB_PASSWORD":            "password",
	"DB_NAME":                "heartline",
	"DB_SSLMODE":             "disable",
	"SQLITE_PATH":            "heartline.db",
	"REDIS_URL":              "localhost:6379",
	"FEED_CACHE_TTL_SECONDS": 30,
	"ALLOWED_ORIGINS":        "http://localhost:5173,http://localhost:3000",
	"FEATURE_FLAGS":          "like_rate_limit=on",
	"LIKE_RATE_LIMIT":        30,
	"TRACING_ENABLED":        false,
	"TRACING_EXPORTER":       "stdout",
	"OTLP_ENDPOINT":          "localhost:4318",
	"TRACING_SAMPLER_RATIO":  1.0,
	"API_BASE_URL":           "http://localhost:8375",
	"API_TOKEN":              "",
	"LIKE_TIMEOUT_MS":        10000,
}

// LoadConfig loads and validates the server configuration.
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig loads the configuration and validates only the client settings.
func LoadClientConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return cfg, nil
}

func load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yml: %w", err)
		}
	}

	env := v.GetString("APP_ENV")
	if env != "" && env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		observability.GlobalLogger.Info("loaded profile-specific configuration", "file", "config."+env+".yml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// JWTTTL is the lifetime of issued tokens.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// FeedCacheTTL is how long feed pages stay cached.
func (c *Config) FeedCacheTTL() time.Duration {
	return time.Duration(c.FeedCacheTTLSecs) * time.Second
}

// LikeTimeout bounds a single remote like toggle on the client.
func (c *Config) LikeTimeout() time.Duration {
	return time.Duration(c.LikeTimeoutMS) * time.Millisecond
}

// TracingConfig converts the tracing settings for observability.InitTracing.
func (c *Config) TracingConfig(serviceName, version string) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Env,
		Enabled:        c.TracingEnabled,
		Exporter:       c.TracingExporter,
		OTLPEndpoint:   c.OTLPEndpoint,
		SamplerRatio:   c.TracingSamplerRatio,
	}
}

// Validate ensures that required server configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTTTLHours <= 0 {
		return errors.New("JWT_TTL_HOURS must be positive")
	}
	switch c.DBDriver {
	case "postgres":
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}

	if !c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			observability.GlobalLogger.Warn("JWT_SECRET is shorter than 32 characters; use a stronger secret in production")
		}
		return nil
	}

	if c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed from the default value in production")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if c.DBDriver == "postgres" {
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
	}
	if c.AllowedOrigins == "*" {
		observability.GlobalLogger.Warn("ALLOWED_ORIGINS is '*' in production")
	}
	return nil
}

// ValidateClient checks the settings feedctl needs.
func (c *Config) ValidateClient() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL %q is not an absolute URL", c.APIBaseURL)
	}
	if c.LikeTimeoutMS <= 0 {
		return errors.New("LIKE_TIMEOUT_MS must be positive")
	}
	return nil
}
