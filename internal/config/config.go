// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// Config holds the document store server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database (users, and files when StoreBackend is postgres)
	DatabaseURL  string
	StoreBackend string

	// S3 document storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Auth
	JWTSecret       string
	AdminPassword   string
	ShutdownTimeout time.Duration
}

// Load reads the server configuration from environment variables with
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9090"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		DatabaseURL:     envOr("DATABASE_URL", ""),
		StoreBackend:    envOr("STORE_BACKEND", BackendPostgres),
		S3Endpoint:      envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:        envOr("S3_BUCKET", "codelog"),
		S3AccessKey:     envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:     envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:        envOr("S3_REGION", "us-east-1"),
		JWTSecret:       envOr("JWT_SECRET", ""),
		AdminPassword:   envOr("ADMIN_PASSWORD", ""),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreBackend {
	case BackendPostgres, BackendS3, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// ClientConfig holds the editor client configuration.
type ClientConfig struct {
	ServerURL     string
	Username      string
	Password      string
	AutosaveDelay time.Duration
	LogFile       string
	LogLevel      string
	RetryAttempts int
}

// LoadClient reads the editor client configuration. The password may be
// left empty to be prompted for.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:     envOr("CODELOG_SERVER", "http://localhost:8080"),
		Username:      envOr("CODELOG_USER", ""),
		Password:      envOr("CODELOG_PASSWORD", ""),
		AutosaveDelay: envDuration("CODELOG_AUTOSAVE_DELAY", 5*time.Second),
		LogFile:       envOr("CODELOG_LOG_FILE", ""),
		LogLevel:      envOr("CODELOG_LOG_LEVEL", "info"),
		RetryAttempts: envInt("CODELOG_RETRY_ATTEMPTS", 3),
	}

	if cfg.AutosaveDelay <= 0 {
		return nil, fmt.Errorf("CODELOG_AUTOSAVE_DELAY must be positive, got %s", cfg.AutosaveDelay)
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
