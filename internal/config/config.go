// Package config loads and validates the orgdesk configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ORGDESK_ prefix (e.g., ORGDESK_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/orgdesk/orgdesk/internal/telemetry"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used for OAuth callbacks and external links.
// When server.public_url is set it is returned as-is; otherwise it falls back to server.base_url.
// This distinction matters in reverse-proxied deployments where the internal listen address
// (base_url) differs from the URL registered with the OAuth provider (public_url).
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Session  SessionConfig  `mapstructure:"session"`
	Password PasswordConfig `mapstructure:"password"`
	OIDC     OIDCConfig     `mapstructure:"oidc"`
}

// SessionConfig controls session token issuance and lifetime
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	CookieName      string        `mapstructure:"cookie_name"`
	RecentSessions  int           `mapstructure:"recent_sessions"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// PasswordConfig controls credential hashing and reset flows
type PasswordConfig struct {
	BcryptCost int           `mapstructure:"bcrypt_cost"`
	MinLength  int           `mapstructure:"min_length"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
}

// OIDCConfig holds OpenID Connect social-login configuration
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	ProviderID   string   `mapstructure:"provider_id"`
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// RedisConfig holds the optional Redis connection used for the dashboard cache
// and distributed rate limiting. When Addr is empty both features degrade to
// in-process no-op / in-memory equivalents.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis connection is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	AuthPerMinute     int  `mapstructure:"auth_per_minute"`
	AuthBurst         int  `mapstructure:"auth_burst"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds pprof configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// bindEnvVars explicitly binds environment variables for nested structures.
// This is necessary because AutomaticEnv() doesn't work well with Unmarshal().
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Auth
		"auth.session.ttl",
		"auth.session.token_ttl",
		"auth.session.cookie_name",
		"auth.session.recent_sessions",
		"auth.session.cleanup_interval",
		"auth.password.bcrypt_cost",
		"auth.password.min_length",
		"auth.password.reset_ttl",
		"auth.oidc.enabled",
		"auth.oidc.provider_id",
		"auth.oidc.issuer_url",
		"auth.oidc.client_id",
		"auth.oidc.client_secret",
		"auth.oidc.redirect_url",
		"auth.oidc.scopes",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.auth_per_minute",
		"security.rate_limiting.auth_burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/orgdesk")
	}

	usingFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
		usingFile = false
	}

	v.SetEnvPrefix("ORGDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Auth.OIDC.ClientSecret = expandEnv(cfg.Auth.OIDC.ClientSecret)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Hot-reload: re-read on file change so long-running servers pick up tunable
	// values (log level, rate limits) without a restart. Connection settings are
	// intentionally not reapplied. Watching only makes sense with a real file.
	if usingFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("config file changed", "file", e.Name, "op", e.Op.String())
			var updated Config
			if err := v.Unmarshal(&updated); err != nil {
				slog.Error("failed to reload config", "error", err)
				return
			}
			if err := updated.Validate(); err != nil {
				slog.Error("reloaded config is invalid, keeping previous", "error", err)
				return
			}
			cfg.Logging = updated.Logging
			cfg.Security.RateLimiting = updated.Security.RateLimiting
			telemetry.SetLevel(updated.Logging.Level)
		})
		v.WatchConfig()
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "orgdesk")
	v.SetDefault("database.user", "orgdesk")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.session.ttl", "168h") // 7 days
	v.SetDefault("auth.session.token_ttl", "1h")
	v.SetDefault("auth.session.cookie_name", "orgdesk_session")
	v.SetDefault("auth.session.recent_sessions", 5)
	v.SetDefault("auth.session.cleanup_interval", "1h")
	v.SetDefault("auth.password.bcrypt_cost", 12)
	v.SetDefault("auth.password.min_length", 8)
	v.SetDefault("auth.password.reset_ttl", "1h")
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.provider_id", "oidc")
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})

	// Redis defaults (disabled unless addr is set)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.auth_per_minute", 10)
	v.SetDefault("security.rate_limiting.auth_burst", 5)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "orgdesk")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.Password.BcryptCost < 10 || c.Auth.Password.BcryptCost > 31 {
		return fmt.Errorf("auth.password.bcrypt_cost must be between 10 and 31, got %d", c.Auth.Password.BcryptCost)
	}
	if c.Auth.Password.MinLength < 1 {
		return fmt.Errorf("auth.password.min_length must be positive, got %d", c.Auth.Password.MinLength)
	}
	if c.Auth.Session.TTL <= 0 {
		return fmt.Errorf("auth.session.ttl must be positive")
	}

	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
