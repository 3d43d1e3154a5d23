package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Gateway GatewayConfig `toml:"gateway"`
	Queuing QueuingConfig `toml:"queuing"`
	Storage StorageConfig `toml:"storage"`
}

// ServerConfig contains HTTP server and database settings
type ServerConfig struct {
	Port        string `toml:"port"`
	DatabaseURL string `toml:"database_url"`
	JWTSecret   string `toml:"jwt_secret"`
}

// GatewayConfig contains payment gateway API settings
type GatewayConfig struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	APISecret          string `toml:"api_secret"`
	WebhookSecret      string `toml:"webhook_secret"`
	InvoiceTTLHours    int    `toml:"invoice_ttl_hours"`
	PollIntervalSecs   int    `toml:"poll_interval_seconds"`
	PollTimeoutSecs    int    `toml:"poll_timeout_seconds"`
	RequestTimeoutSecs int    `toml:"request_timeout_seconds"`
}

// QueuingConfig contains Redis and task queue settings
type QueuingConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Concurrency   int    `toml:"concurrency"`
}

// StorageConfig contains object storage settings for receipts
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Load reads configuration from a TOML file when the path is set, then
// applies environment overrides. Env always wins so deployments can keep
// secrets out of the file.
func Load(filename string) (*Config, error) {
	config := defaults()

	if filename != "" {
		if _, err := toml.DecodeFile(filename, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnv(config)
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Gateway: GatewayConfig{
			InvoiceTTLHours:    24,
			PollIntervalSecs:   2,
			PollTimeoutSecs:    60,
			RequestTimeoutSecs: 15,
		},
		Queuing: QueuingConfig{
			RedisAddr:   "localhost:6379",
			Concurrency: 10,
		},
	}
}

func applyEnv(config *Config) {
	overrideString(&config.Server.Port, "PORT")
	overrideString(&config.Server.DatabaseURL, "DATABASE_URL")
	overrideString(&config.Server.JWTSecret, "JWT_SECRET")

	overrideString(&config.Gateway.BaseURL, "GATEWAY_BASE_URL")
	overrideString(&config.Gateway.APIKey, "GATEWAY_API_KEY")
	overrideString(&config.Gateway.APISecret, "GATEWAY_API_SECRET")
	overrideString(&config.Gateway.WebhookSecret, "GATEWAY_WEBHOOK_SECRET")
	overrideInt(&config.Gateway.InvoiceTTLHours, "GATEWAY_INVOICE_TTL_HOURS")
	overrideInt(&config.Gateway.PollIntervalSecs, "GATEWAY_POLL_INTERVAL_SECONDS")
	overrideInt(&config.Gateway.PollTimeoutSecs, "GATEWAY_POLL_TIMEOUT_SECONDS")
	overrideInt(&config.Gateway.RequestTimeoutSecs, "GATEWAY_REQUEST_TIMEOUT_SECONDS")

	overrideString(&config.Queuing.RedisAddr, "REDIS_ADDR")
	overrideString(&config.Queuing.RedisPassword, "REDIS_PASSWORD")
	overrideInt(&config.Queuing.RedisDB, "REDIS_DB")
	overrideInt(&config.Queuing.Concurrency, "QUEUE_CONCURRENCY")

	overrideString(&config.Storage.Endpoint, "MINIO_ENDPOINT")
	overrideString(&config.Storage.AccessKey, "MINIO_ACCESS_KEY")
	overrideString(&config.Storage.SecretKey, "MINIO_SECRET_KEY")
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// InvoiceTTL returns the gateway invoice lifetime as a duration
func (c *Config) InvoiceTTL() time.Duration {
	return time.Duration(c.Gateway.InvoiceTTLHours) * time.Hour
}

// PollInterval returns the status poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gateway.PollIntervalSecs) * time.Second
}

// PollTimeout returns the status poll window as a duration
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Gateway.PollTimeoutSecs) * time.Second
}

// RequestTimeout returns the per-call gateway HTTP timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Gateway.RequestTimeoutSecs) * time.Second
}
