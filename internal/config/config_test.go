package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "orgdesk",
				Password: "secret",
				Name:     "orgdesk",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=orgdesk password=secret dbname=orgdesk sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig helpers
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPublicURL(t *testing.T) {
	cfg := ServerConfig{BaseURL: "http://internal:8080"}
	if got := cfg.GetPublicURL(); got != "http://internal:8080" {
		t.Errorf("GetPublicURL() = %q, want fallback to base_url", got)
	}

	cfg.PublicURL = "https://app.example.com"
	if got := cfg.GetPublicURL(); got != "https://app.example.com" {
		t.Errorf("GetPublicURL() = %q, want public_url", got)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "server:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.Session.TTL != 168*time.Hour {
		t.Errorf("Auth.Session.TTL = %v, want 168h", cfg.Auth.Session.TTL)
	}
	if cfg.Auth.Password.BcryptCost != 12 {
		t.Errorf("Auth.Password.BcryptCost = %d, want 12", cfg.Auth.Password.BcryptCost)
	}
	if cfg.Auth.Password.MinLength != 8 {
		t.Errorf("Auth.Password.MinLength = %d, want 8", cfg.Auth.Password.MinLength)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis.Enabled() = true with no addr configured")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("ORGDESK_DATABASE_HOST", "db.internal")
	os.Setenv("ORGDESK_REDIS_ADDR", "redis:6379")
	defer os.Unsetenv("ORGDESK_DATABASE_HOST")
	defer os.Unsetenv("ORGDESK_REDIS_ADDR")

	cfg, err := Load(writeConfigFile(t, "logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want env override db.internal", cfg.Database.Host)
	}
	if !cfg.Redis.Enabled() {
		t.Error("Redis.Enabled() = false, want true after env override")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn from file", cfg.Logging.Level)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load(writeConfigFile(t, "logging:\n  level: loud\n"))
	if err == nil {
		t.Fatal("expected error for invalid logging level")
	}
	if !strings.Contains(err.Error(), "logging level") {
		t.Errorf("error = %v, want mention of logging level", err)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080, BaseURL: "http://localhost:8080"},
			Database: DatabaseConfig{Host: "localhost", Name: "orgdesk", User: "orgdesk"},
			Auth: AuthConfig{
				Session:  SessionConfig{TTL: time.Hour},
				Password: PasswordConfig{BcryptCost: 12, MinLength: 8},
			},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"bcrypt cost too low", func(c *Config) { c.Auth.Password.BcryptCost = 4 }, "bcrypt_cost"},
		{"zero session ttl", func(c *Config) { c.Auth.Session.TTL = 0 }, "session.ttl"},
		{
			"oidc enabled without issuer",
			func(c *Config) { c.Auth.OIDC = OIDCConfig{Enabled: true, ClientID: "x", ClientSecret: "y"} },
			"issuer_url",
		},
		{
			"tls enabled without cert",
			func(c *Config) { c.Security.TLS.Enabled = true },
			"cert_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
