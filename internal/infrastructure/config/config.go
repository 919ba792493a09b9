// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	precision := cfg.Invoice.Precision
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Invoice       InvoiceConfig       `yaml:"invoice"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GatewayConfig holds the ERP backend the balancer saves invoices to.
// An empty BaseURL disables saving.
type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
}

// Enabled reports whether a backend is configured.
func (g GatewayConfig) Enabled() bool {
	return g.BaseURL != ""
}

// InvoiceConfig holds balancing settings
type InvoiceConfig struct {
	Precision         int    `yaml:"precision"`
	MarketplacePrefix string `yaml:"marketplace_prefix"`
}

// RealtimeConfig holds event stream settings
type RealtimeConfig struct {
	Buffer int `yaml:"buffer"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics bool          `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DatabasePath: "ledger_balancer.db"},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8085,
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Timeout:  30 * time.Second,
			RetryMax: 3,
		},
		Invoice: InvoiceConfig{
			Precision:         2,
			MarketplacePrefix: "eBay",
		},
		Realtime: RealtimeConfig{Buffer: 256},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
			Metrics: true,
		},
	}
}

// Load reads and parses the config file. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${ERP_API_SECRET})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	d := Default()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("BALANCER_DB_PATH", d.Storage.DatabasePath),
		},
		Server: ServerConfig{
			Host:            getEnv("BALANCER_HOST", d.Server.Host),
			Port:            getEnvInt("BALANCER_PORT", d.Server.Port),
			AllowedOrigins:  getEnvList("BALANCER_ALLOWED_ORIGINS"),
			ShutdownTimeout: d.Server.ShutdownTimeout,
		},
		Gateway: GatewayConfig{
			BaseURL:   os.Getenv("ERP_BASE_URL"),
			APIKey:    os.Getenv("ERP_API_KEY"),
			APISecret: os.Getenv("ERP_API_SECRET"),
			Timeout:   d.Gateway.Timeout,
			RetryMax:  getEnvInt("ERP_RETRY_MAX", d.Gateway.RetryMax),
		},
		Invoice: InvoiceConfig{
			Precision:         getEnvInt("CURRENCY_PRECISION", d.Invoice.Precision),
			MarketplacePrefix: getEnv("MARKETPLACE_POS_PREFIX", d.Invoice.MarketplacePrefix),
		},
		Realtime: RealtimeConfig{
			Buffer: getEnvInt("REALTIME_BUFFER", d.Realtime.Buffer),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
			Metrics: getEnv("METRICS_ENABLED", "true") != "false",
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate rejects settings the balancer cannot run with
func (c *Config) Validate() error {
	if c.Invoice.Precision < 0 {
		return fmt.Errorf("invoice.precision must not be negative, got %d", c.Invoice.Precision)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Gateway.Enabled() && c.Gateway.APIKey == "" {
		return fmt.Errorf("gateway.api_key is required when gateway.base_url is set")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList splits a comma separated environment variable
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
