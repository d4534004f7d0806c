package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                 "production",
		Port:                "8080",
		JWTSecret:           "secure-secret-at-least-32-chars-long",
		JWTTTLHours:         24,
		DBDriver:            "postgres",
		DBPassword:          "secure-password",
		DBSSLMode:           "require",
		TracingSamplerRatio: 1,
		APIBaseURL:          "http://localhost:8375",
		LikeTimeoutMS:       5000,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid production", func(*Config) {}, false},
		{"production with disabled ssl", func(c *Config) { c.DBSSLMode = "disable" }, true},
		{"production with empty ssl", func(c *Config) { c.DBSSLMode = "" }, true},
		{"prod alias with verify-full", func(c *Config) { c.Env = "prod"; c.DBSSLMode = "verify-full" }, false},
		{"production default secret", func(c *Config) { c.JWTSecret = defaultJWTSecret }, true},
		{"production short secret", func(c *Config) { c.JWTSecret = "short" }, true},
		{"production weak db password", func(c *Config) { c.DBPassword = "password" }, true},
		{"production sqlite skips db checks", func(c *Config) {
			c.DBDriver = "sqlite"
			c.SQLitePath = "/var/lib/heartline.db"
			c.DBSSLMode = "disable"
			c.DBPassword = ""
		}, false},
		{"development allows short secret", func(c *Config) { c.Env = "development"; c.JWTSecret = "short" }, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"non-positive ttl", func(c *Config) { c.JWTTTLHours = 0 }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"sqlite without path", func(c *Config) { c.DBDriver = "sqlite"; c.SQLitePath = "" }, true},
		{"sampler out of range", func(c *Config) { c.TracingSamplerRatio = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateClient(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.ValidateClient())

	c.APIBaseURL = "localhost:8375"
	assert.Error(t, c.ValidateClient())

	c = validConfig()
	c.LikeTimeoutMS = 0
	assert.Error(t, c.ValidateClient())
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", " SQLite ")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("API_BASE_URL", "http://api.example.test/")
	t.Setenv("LIKE_TIMEOUT_MS", "1500")

	c, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "http://api.example.test", c.APIBaseURL)
	assert.Equal(t, 1500*time.Millisecond, c.LikeTimeout())
	assert.Equal(t, "8375", c.Port)
	assert.Equal(t, 72*time.Hour, c.JWTTTL())
	assert.Equal(t, 30*time.Second, c.FeedCacheTTL())
}

func TestLoadClientConfig_RejectsBadURL(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("API_BASE_URL", "not a url")

	_, err := LoadClientConfig()
	assert.Error(t, err)
}

func TestConfig_TracingConfig(t *testing.T) {
	c := validConfig()
	c.TracingEnabled = true
	c.TracingExporter = "otlp"
	c.OTLPEndpoint = "collector:4318"

	tc := c.TracingConfig("heartline-api", "1.0.0")
	assert.Equal(t, "heartline-api", tc.ServiceName)
	assert.Equal(t, "production", tc.Environment)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otlp", tc.Exporter)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
}
