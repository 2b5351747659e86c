package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Connection strings
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "pg.internal", Port: 5433, User: "stagehand", Password: "s3cret", Name: "admin", SSLMode: "verify-full"}
	want := "host=pg.internal port=5433 user=stagehand password=s3cret dbname=admin sslmode=verify-full"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	for _, tt := range []struct {
		cfg  ServerConfig
		want string
	}{
		{ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{ServerConfig{Port: 8443}, ":8443"},
	} {
		if got := tt.cfg.GetAddress(); got != tt.want {
			t.Errorf("GetAddress() = %q, want %q", got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "stagehand",
			User: "stagehand",
		},
		Auth: AuthConfig{
			Session: SessionConfig{
				AbsoluteTTL: 30 * time.Minute,
				IdleTimeout: 30 * time.Minute,
				HeaderName:  "X-Admin-Session",
			},
			Lockout: LockoutConfig{MaxAttempts: 5, Duration: 15 * time.Minute},
			TOTP:    TOTPConfig{WindowSteps: 2},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing db name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing db user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true }, "redis.addr"},
		{"zero session ttl", func(c *Config) { c.Auth.Session.AbsoluteTTL = 0 }, "absolute_ttl"},
		{"zero idle timeout", func(c *Config) { c.Auth.Session.IdleTimeout = 0 }, "idle_timeout"},
		{"missing header name", func(c *Config) { c.Auth.Session.HeaderName = "" }, "header_name"},
		{"zero lockout threshold", func(c *Config) { c.Auth.Lockout.MaxAttempts = 0 }, "max_attempts"},
		{"zero lockout duration", func(c *Config) { c.Auth.Lockout.Duration = 0 }, "lockout.duration"},
		{"negative totp window", func(c *Config) { c.Auth.TOTP.WindowSteps = -1 }, "window_steps"},
		{"weak bcrypt cost", func(c *Config) { c.Auth.Password.BcryptCost = 4 }, "bcrypt_cost"},
		{"tls without cert", func(c *Config) {
			c.Security.TLS.Enabled = true
			c.Security.TLS.KeyFile = "key.pem"
		}, "cert_file"},
		{"tls without key", func(c *Config) {
			c.Security.TLS.Enabled = true
			c.Security.TLS.CertFile = "cert.pem"
		}, "key_file"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }, "invalid logging output"},
		{"rate limiting without budget", func(c *Config) {
			c.Security.RateLimiting = RateLimitingConfig{Enabled: true, RequestsPerMinute: 60}
		}, "rate_limiting"},
		{"unknown archive backend", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "ftp"
		}, "invalid audit archive backend"},
		{"s3 archive without bucket", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "s3"
			c.Audit.Archive.S3.Region = "us-east-1"
		}, "audit.archive.s3.bucket"},
		{"s3 archive without region", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "s3"
			c.Audit.Archive.S3.Bucket = "audit"
		}, "audit.archive.s3.region"},
		{"gcs archive without bucket", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "gcs"
		}, "audit.archive.gcs.bucket"},
		{"azure archive without account", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "azure"
		}, "audit.archive.azure.account_name"},
		{"local archive without path", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Backend = "local"
		}, "audit.archive.local.base_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("disabled archive is not validated", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Archive.Backend = "ftp"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("accepts all valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
auth:
  session:
    absolute_ttl: "45m"
    idle_timeout: "10m"
  lockout:
    max_attempts: 3
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Auth.Session.AbsoluteTTL != 45*time.Minute {
		t.Errorf("Auth.Session.AbsoluteTTL = %v, want 45m", cfg.Auth.Session.AbsoluteTTL)
	}
	if cfg.Auth.Session.IdleTimeout != 10*time.Minute {
		t.Errorf("Auth.Session.IdleTimeout = %v, want 10m", cfg.Auth.Session.IdleTimeout)
	}
	if cfg.Auth.Lockout.MaxAttempts != 3 {
		t.Errorf("Auth.Lockout.MaxAttempts = %d, want 3", cfg.Auth.Lockout.MaxAttempts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
database:
  host: "localhost"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.Session.AbsoluteTTL != 30*time.Minute {
		t.Errorf("default AbsoluteTTL = %v, want 30m", cfg.Auth.Session.AbsoluteTTL)
	}
	if cfg.Auth.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("default IdleTimeout = %v, want 30m", cfg.Auth.Session.IdleTimeout)
	}
	if cfg.Auth.Session.HeaderName != "X-Admin-Session" {
		t.Errorf("default HeaderName = %q, want X-Admin-Session", cfg.Auth.Session.HeaderName)
	}
	if cfg.Auth.Session.CookieName != "admin_session" {
		t.Errorf("default CookieName = %q, want admin_session", cfg.Auth.Session.CookieName)
	}
	if cfg.Auth.Lockout.MaxAttempts != 5 {
		t.Errorf("default MaxAttempts = %d, want 5", cfg.Auth.Lockout.MaxAttempts)
	}
	if cfg.Auth.Lockout.Duration != 15*time.Minute {
		t.Errorf("default lockout Duration = %v, want 15m", cfg.Auth.Lockout.Duration)
	}
	if cfg.Auth.TOTP.WindowSteps != 2 {
		t.Errorf("default WindowSteps = %d, want 2", cfg.Auth.TOTP.WindowSteps)
	}
	if cfg.Auth.Password.BcryptCost != 12 {
		t.Errorf("default BcryptCost = %d, want 12", cfg.Auth.Password.BcryptCost)
	}
	if cfg.Audit.QueueSize != 1024 {
		t.Errorf("default Audit.QueueSize = %d, want 1024", cfg.Audit.QueueSize)
	}
	if cfg.Audit.WriteTimeout != 5*time.Second {
		t.Errorf("default Audit.WriteTimeout = %v, want 5s", cfg.Audit.WriteTimeout)
	}
	if cfg.Audit.ShipTimeout != 30*time.Second {
		t.Errorf("default Audit.ShipTimeout = %v, want 30s", cfg.Audit.ShipTimeout)
	}
	if cfg.Jobs.SessionCleanupInterval != 10*time.Minute {
		t.Errorf("default SessionCleanupInterval = %v, want 10m", cfg.Jobs.SessionCleanupInterval)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STH_AUTH_LOCKOUT_MAX_ATTEMPTS", "7")
	t.Setenv("STH_AUTH_SESSION_HEADER_NAME", "X-Session")
	path := writeTempConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Lockout.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Auth.Lockout.MaxAttempts)
	}
	if cfg.Auth.Session.HeaderName != "X-Session" {
		t.Errorf("HeaderName = %q, want X-Session", cfg.Auth.Session.HeaderName)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
database:
  host: "localhost"
  password: "${TEST_DB_PASS}"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestEnvKeys(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range envKeys(reflect.TypeOf(Config{}), "") {
		keys[k] = true
	}
	for _, want := range []string{
		"server.port",
		"auth.session.idle_timeout",
		"security.cors.allowed_origins",
		"audit.archive.s3.web_identity_token_file",
		"jobs.session_cleanup_interval",
	} {
		if !keys[want] {
			t.Errorf("envKeys() missing %q", want)
		}
	}
	for _, skip := range []string{"audit.shippers", "audit.archive", "auth.session"} {
		if keys[skip] {
			t.Errorf("envKeys() should not bind %q", skip)
		}
	}
}

func TestLoad_RedisAndArchiveFromEnv(t *testing.T) {
	t.Setenv("STH_REDIS_ENABLED", "true")
	t.Setenv("STH_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STH_AUDIT_ARCHIVE_ENABLED", "true")
	t.Setenv("STH_AUDIT_ARCHIVE_BACKEND", "s3")
	t.Setenv("STH_AUDIT_ARCHIVE_S3_BUCKET", "admin-audit")
	t.Setenv("STH_AUDIT_ARCHIVE_S3_REGION", "eu-west-1")
	t.Setenv("ARCHIVE_SECRET", "from-vault")
	path := writeTempConfig(t, "audit:\n  archive:\n    s3:\n      secret_access_key: \"${ARCHIVE_SECRET}\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis = %+v, want enabled at redis.internal:6380", cfg.Redis)
	}
	if cfg.Audit.Archive.Backend != "s3" || cfg.Audit.Archive.S3.Bucket != "admin-audit" {
		t.Errorf("Archive = %+v, want s3 bucket admin-audit", cfg.Audit.Archive)
	}
	if cfg.Audit.Archive.S3.SecretAccessKey != "from-vault" {
		t.Errorf("SecretAccessKey = %q, want expanded value", cfg.Audit.Archive.S3.SecretAccessKey)
	}
	if cfg.Audit.Archive.BatchSize != 500 || cfg.Audit.Archive.FlushInterval != time.Minute {
		t.Errorf("archive defaults not applied: batch=%d interval=%v", cfg.Audit.Archive.BatchSize, cfg.Audit.Archive.FlushInterval)
	}
}
