package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = ":8480"
	defaultProtocolPath   = "config/protocol.toml"
	defaultDataDir        = "data/cdpd"
	defaultRequestTimeout = 10 * time.Second
)

// Config captures the runtime settings for the cdpd daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	ProtocolPath   string          `yaml:"protocol"`
	Storage        StorageConfig   `yaml:"storage"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Archive        ArchiveConfig   `yaml:"archive"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Log            LogConfig       `yaml:"log"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	// Engine is one of "leveldb", "bolt" or "memory".
	Engine  string `yaml:"engine"`
	DataDir string `yaml:"data_dir"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer JWT verification. The token subject is the
// caller's bech32 address.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ArchiveConfig points the event archive at a sqlite DSN. An empty DSN
// disables archiving.
type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig toggles the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// LogConfig sets the log level and an optional rotating file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.ProtocolPath = strings.TrimSpace(cfg.ProtocolPath)
	if cfg.ProtocolPath == "" {
		cfg.ProtocolPath = defaultProtocolPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.Storage.Engine = strings.ToLower(strings.TrimSpace(cfg.Storage.Engine))
	if cfg.Storage.Engine == "" {
		cfg.Storage.Engine = "leveldb"
	}
	cfg.Storage.DataDir = strings.TrimSpace(cfg.Storage.DataDir)
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.HMACSecretEnv = strings.TrimSpace(cfg.Auth.HMACSecretEnv)
	if cfg.Auth.HMACSecret == "" && cfg.Auth.HMACSecretEnv != "" {
		cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
	}
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Log.Level = strings.TrimSpace(cfg.Log.Level)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage.Engine {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage: unknown engine %q", cfg.Storage.Engine)
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	return nil
}

// Enabled reports whether TLS material is configured.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

func (cfg AuthConfig) validate() error {
	if cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret or hmac_secret_env must be configured")
	}
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac secret must be at least 32 bytes")
	}
	return nil
}
