// Package config loads and validates the admin auth service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the STH_ prefix (e.g., STH_DATABASE_HOST
// overrides database.host in the YAML).
//
// The TOTP_ENCRYPTION_KEY variable has no STH_ prefix because it is usually injected
// by infrastructure tooling (Kubernetes secrets, Vault agent) that treats it as a
// generic secret name.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
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

// RedisConfig holds the optional Redis connection used for distributed login
// rate limiting. When disabled, rate limiting falls back to in-process buckets.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds administrator authentication configuration
type AuthConfig struct {
	Session  SessionConfig  `mapstructure:"session"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	TOTP     TOTPConfig     `mapstructure:"totp"`
	Password PasswordConfig `mapstructure:"password"`
}

// SessionConfig controls session lifetime and token transport.
type SessionConfig struct {
	// AbsoluteTTL is fixed at issue time and never extended by activity.
	AbsoluteTTL time.Duration `mapstructure:"absolute_ttl"`
	// IdleTimeout is measured from the last verified request.
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	HeaderName   string        `mapstructure:"header_name"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	// TouchTimeout bounds the asynchronous last-activity update.
	TouchTimeout time.Duration `mapstructure:"touch_timeout"`
}

// LockoutConfig holds brute-force lockout settings
type LockoutConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

// TOTPConfig holds second-factor settings
type TOTPConfig struct {
	// WindowSteps is the number of 30-second steps accepted on either side of now.
	WindowSteps int    `mapstructure:"window_steps"`
	Issuer      string `mapstructure:"issuer"`
}

// PasswordConfig holds password hashing settings
type PasswordConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
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
	// LoginRequestsPerMinute is the per-IP budget for the login endpoint.
	LoginRequestsPerMinute int `mapstructure:"login_requests_per_minute"`
	LoginBurst             int `mapstructure:"login_burst"`
}

// TLSConfig holds TLS/HTTPS configuration
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
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if audit entries are persisted at all
	Enabled bool `mapstructure:"enabled"`
	// QueueSize bounds the in-memory queue; entries beyond it are dropped
	QueueSize int `mapstructure:"queue_size"`
	// Workers is the number of background writers draining the queue
	Workers int `mapstructure:"workers"`
	// WriteTimeout bounds each persistence attempt
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShipTimeout bounds delivery of one entry to the shippers, including a batch upload
	ShipTimeout time.Duration `mapstructure:"ship_timeout"`
	// Shippers configures external log shipping
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
	// Archive configures batched object-storage archival
	Archive AuditArchiveConfig `mapstructure:"archive"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditArchiveConfig holds configuration for the object-storage audit archive.
type AuditArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"` // local, s3, gcs, azure
	Prefix        string        `mapstructure:"prefix"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	Azure AzureArchiveConfig `mapstructure:"azure"`
	S3    S3ArchiveConfig    `mapstructure:"s3"`
	GCS   GCSArchiveConfig   `mapstructure:"gcs"`
	Local LocalArchiveConfig `mapstructure:"local"`
}

// AzureArchiveConfig holds Azure Blob Storage configuration
type AzureArchiveConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3ArchiveConfig holds S3-compatible storage configuration
type S3ArchiveConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSArchiveConfig holds Google Cloud Storage configuration
type GCSArchiveConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// Authentication method: "default", "service_account"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalArchiveConfig holds local filesystem archive configuration
type LocalArchiveConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	SessionCleanupInterval time.Duration `mapstructure:"session_cleanup_interval"`
}

// bindEnvVars binds every leaf key of Config so STH_* variables reach nested fields;
// AutomaticEnv alone is not consulted by Unmarshal for keys with no default or file value.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// envKeys lists the dotted mapstructure keys of t's scalar fields. Pointer sections and
// lists of structs (audit shippers) are file-only.
func envKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		switch ft := f.Type; {
		case ft.Kind() == reflect.Struct:
			keys = append(keys, envKeys(ft, key)...)
		case ft.Kind() == reflect.Pointer:
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct:
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/stagehand")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("STH")
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
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Audit.Archive.Azure.AccountKey = expandEnv(cfg.Audit.Archive.Azure.AccountKey)
	cfg.Audit.Archive.S3.AccessKeyID = expandEnv(cfg.Audit.Archive.S3.AccessKeyID)
	cfg.Audit.Archive.S3.SecretAccessKey = expandEnv(cfg.Audit.Archive.S3.SecretAccessKey)
	cfg.Audit.Archive.GCS.CredentialsJSON = expandEnv(cfg.Audit.Archive.GCS.CredentialsJSON)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "stagehand")
	v.SetDefault("database.user", "stagehand")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.session.absolute_ttl", "30m")
	v.SetDefault("auth.session.idle_timeout", "30m")
	v.SetDefault("auth.session.header_name", "X-Admin-Session")
	v.SetDefault("auth.session.cookie_name", "admin_session")
	v.SetDefault("auth.session.cookie_secure", true)
	v.SetDefault("auth.session.touch_timeout", "5s")
	v.SetDefault("auth.lockout.max_attempts", 5)
	v.SetDefault("auth.lockout.duration", "15m")
	v.SetDefault("auth.totp.window_steps", 2)
	v.SetDefault("auth.totp.issuer", "Stagehand Admin")
	v.SetDefault("auth.password.bcrypt_cost", 12)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.login_requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.login_burst", 5)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.write_timeout", "5s")
	v.SetDefault("audit.ship_timeout", "30s")
	v.SetDefault("audit.archive.enabled", false)
	v.SetDefault("audit.archive.backend", "local")
	v.SetDefault("audit.archive.prefix", "admin-audit")
	v.SetDefault("audit.archive.batch_size", 500)
	v.SetDefault("audit.archive.flush_interval", "1m")
	v.SetDefault("audit.archive.local.base_path", "./audit-archive")

	// Jobs defaults
	v.SetDefault("jobs.session_cleanup_interval", "10m")
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

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Auth
	if c.Auth.Session.AbsoluteTTL <= 0 {
		return fmt.Errorf("auth.session.absolute_ttl must be positive")
	}
	if c.Auth.Session.IdleTimeout <= 0 {
		return fmt.Errorf("auth.session.idle_timeout must be positive")
	}
	if c.Auth.Session.HeaderName == "" {
		return fmt.Errorf("auth.session.header_name is required")
	}
	if c.Auth.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("auth.lockout.max_attempts must be at least 1, got %d", c.Auth.Lockout.MaxAttempts)
	}
	if c.Auth.Lockout.Duration <= 0 {
		return fmt.Errorf("auth.lockout.duration must be positive")
	}
	if c.Auth.TOTP.WindowSteps < 0 {
		return fmt.Errorf("auth.totp.window_steps must not be negative")
	}
	if c.Auth.Password.BcryptCost != 0 && (c.Auth.Password.BcryptCost < 10 || c.Auth.Password.BcryptCost > 31) {
		return fmt.Errorf("auth.password.bcrypt_cost must be between 10 and 31, got %d", c.Auth.Password.BcryptCost)
	}

	if c.Audit.Archive.Enabled {
		if err := c.Audit.Archive.validate(); err != nil {
			return err
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

	if rl := c.Security.RateLimiting; rl.Enabled {
		if rl.RequestsPerMinute < 1 || rl.LoginRequestsPerMinute < 1 {
			return fmt.Errorf("security.rate_limiting request budgets must be positive when rate limiting is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("invalid logging output: %s (must be stdout or stderr)", c.Logging.Output)
	}

	return nil
}

func (a *AuditArchiveConfig) validate() error {
	switch a.Backend {
	case "azure":
		if a.Azure.AccountName == "" {
			return fmt.Errorf("audit.archive.azure.account_name is required when using Azure backend")
		}
		if a.Azure.AccountKey == "" {
			return fmt.Errorf("audit.archive.azure.account_key is required when using Azure backend")
		}
		if a.Azure.ContainerName == "" {
			return fmt.Errorf("audit.archive.azure.container_name is required when using Azure backend")
		}
	case "s3":
		if a.S3.Bucket == "" {
			return fmt.Errorf("audit.archive.s3.bucket is required when using S3 backend")
		}
		if a.S3.Region == "" {
			return fmt.Errorf("audit.archive.s3.region is required when using S3 backend")
		}
	case "gcs":
		if a.GCS.Bucket == "" {
			return fmt.Errorf("audit.archive.gcs.bucket is required when using GCS backend")
		}
	case "local":
		if a.Local.BasePath == "" {
			return fmt.Errorf("audit.archive.local.base_path is required when using local backend")
		}
	default:
		return fmt.Errorf("invalid audit archive backend: %s (must be azure, s3, gcs, or local)", a.Backend)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
