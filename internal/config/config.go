// Package config loads configuration from environment variables, optionally
// overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all panel server configuration.
type Config struct {
	// Server
	ListenAddr      string `yaml:"listen_addr"`
	MetricsAddr     string `yaml:"metrics_addr"`
	MaxRequestBytes int64  `yaml:"max_request_bytes"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Database
	DatabaseURL   string `yaml:"database_url"`
	MigrationsDir string `yaml:"migrations_dir"`

	// TLS (optional, HTTPS when both are set)
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// Auth
	JWTSecret     string        `yaml:"jwt_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`

	// OIDC (optional)
	OIDCIssuerURL  string `yaml:"oidc_issuer_url"`
	OIDCClientID   string `yaml:"oidc_client_id"`
	OIDCAdminClaim string `yaml:"oidc_admin_claim"`
	OIDCAdminValue string `yaml:"oidc_admin_value"`

	// Filesystem
	UploadsRoot        string        `yaml:"uploads_root"`
	DefaultFileLimitMB int64         `yaml:"default_file_limit_mb"`
	CompressTimeout    time.Duration `yaml:"compress_timeout"`
	WebDAVEnabled      bool          `yaml:"webdav_enabled"`

	// Terminal
	TerminalTimeout   time.Duration `yaml:"terminal_timeout"`
	TerminalMaxOutput int           `yaml:"terminal_max_output"`
	TerminalAdminOnly bool          `yaml:"terminal_admin_only"`

	// Clipboard persistence (optional, in-memory when empty)
	RedisURL string `yaml:"redis_url"`

	// Rate limiting, 0 = unlimited
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Backups
	BackupDir         string `yaml:"backup_dir"`
	BackupS3Bucket    string `yaml:"backup_s3_bucket"`
	BackupS3Endpoint  string `yaml:"backup_s3_endpoint"`
	BackupS3Region    string `yaml:"backup_s3_region"`
	BackupS3AccessKey string `yaml:"backup_s3_access_key"`
	BackupS3SecretKey string `yaml:"backup_s3_secret_key"`
}

// Load reads configuration from environment variables with defaults. When
// PANEL_CONFIG_FILE is set, values present in that file override them.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":3000"),
		MetricsAddr:        envOr("METRICS_ADDR", ":9090"),
		MaxRequestBytes:    envInt64("MAX_REQUEST_BYTES", 1<<30),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		DatabaseURL:        envOr("DATABASE_URL", ""),
		MigrationsDir:      envOr("MIGRATIONS_DIR", "migrations"),
		TLSCertFile:        envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:         envOr("TLS_KEY_FILE", ""),
		JWTSecret:          envOr("JWT_SECRET", ""),
		SessionTTL:         envDuration("SESSION_TTL", 24*time.Hour),
		AdminUsername:      envOr("ADMIN_USERNAME", "admin"),
		AdminPassword:      envOr("ADMIN_PASSWORD", ""),
		OIDCIssuerURL:      envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:       envOr("OIDC_CLIENT_ID", ""),
		OIDCAdminClaim:     envOr("OIDC_ADMIN_CLAIM", "is_admin"),
		OIDCAdminValue:     envOr("OIDC_ADMIN_VALUE", "true"),
		UploadsRoot:        envOr("UPLOADS_ROOT", "/var/lib/panel/uploads"),
		DefaultFileLimitMB: envInt64("DEFAULT_FILE_LIMIT_MB", 100),
		CompressTimeout:    envDuration("COMPRESS_TIMEOUT", 2*time.Minute),
		WebDAVEnabled:      envBool("WEBDAV_ENABLED", true),
		TerminalTimeout:    envDuration("TERMINAL_TIMEOUT", 30*time.Second),
		TerminalMaxOutput:  envInt("TERMINAL_MAX_OUTPUT", 1024*1024),
		TerminalAdminOnly:  envBool("TERMINAL_ADMIN_ONLY", false),
		RedisURL:           envOr("REDIS_URL", ""),
		RequestsPerMinute:  envInt("REQUESTS_PER_MINUTE", 0),
		BackupDir:          envOr("BACKUP_DIR", "/var/lib/panel/backups"),
		BackupS3Bucket:     envOr("BACKUP_S3_BUCKET", ""),
		BackupS3Endpoint:   envOr("BACKUP_S3_ENDPOINT", ""),
		BackupS3Region:     envOr("BACKUP_S3_REGION", "us-east-1"),
		BackupS3AccessKey:  envOr("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey:  envOr("BACKUP_S3_SECRET_KEY", ""),
	}

	if path := os.Getenv("PANEL_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.UploadsRoot == "" {
		return nil, fmt.Errorf("UPLOADS_ROOT must not be empty")
	}
	if cfg.DefaultFileLimitMB <= 0 {
		return nil, fmt.Errorf("DEFAULT_FILE_LIMIT_MB must be positive")
	}

	return cfg, nil
}

// overlayFile decodes a YAML document on top of cfg. Keys absent from the
// document keep their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultFileLimitBytes is the per-file upload ceiling for users without one.
func (c *Config) DefaultFileLimitBytes() int64 {
	return c.DefaultFileLimitMB * 1024 * 1024
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts Go duration strings ("30s") or plain milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
