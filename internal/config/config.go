package config

import (
	"fmt"
	"os"
	"time"

	pkgconfig "github.com/farunova-art/farunova-sub001/pkg/config"
)

type Config struct {
	Service        ServiceConfig        `yaml:"service" mapstructure:"service"`
	Database       DatabaseConfig       `yaml:"database" mapstructure:"database"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
	JWT            JWTConfig            `yaml:"jwt" mapstructure:"jwt"`
	Redis          RedisConfig          `yaml:"redis" mapstructure:"redis"`
	Mpesa          MpesaConfig          `yaml:"mpesa" mapstructure:"mpesa"`
	Poller         PollerConfig         `yaml:"poller" mapstructure:"poller"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation" mapstructure:"reconciliation"`
	Events         EventsConfig         `yaml:"events" mapstructure:"events"`
}

// LoadConfig reads CONFIG_PATH (default ./configs/payment.yaml). Any key can be
// overridden from the environment with the PAYMENT_ prefix, e.g.
// PAYMENT_MPESA_CONSUMER_SECRET.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	loaded, err := pkgconfig.Load(pkgconfig.Options{
		File:      path,
		EnvPrefix: "PAYMENT",
		Defaults:  defaults(),
	})
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := loaded.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Mpesa.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mpesa config: %w", err)
	}

	return &cfg, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"service.name":                "mpesa-payment",
		"server.http.host":            "0.0.0.0",
		"server.http.port":            8080,
		"server.grpc.host":            "0.0.0.0",
		"server.grpc.port":            9090,
		"log.level":                   "info",
		"log.format":                  "json",
		"log.output":                  "stdout",
		"database.driver":             DriverPostgres,
		"database.path":               "payments.db",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  30 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.ssl_mode":           "disable",
		"redis.addr":                  "localhost:6379",
		"mpesa.environment":           EnvironmentSandbox,
		"mpesa.transaction_type":      "CustomerPayBillOnline",
		"mpesa.timeout":               30 * time.Second,
		"mpesa.token_lifetime":        3600 * time.Second,
		"mpesa.token_safety_margin":   100 * time.Second,
		"mpesa.token_store":           TokenStoreMemory,
		"mpesa.token_key":             "mpesa:access_token",
		"poller.enabled":              false,
		"poller.interval":             time.Minute,
		"poller.stale_after":          2 * time.Minute,
		"poller.batch_size":           50,
		"reconciliation.enabled":      false,
		"reconciliation.interval":     24 * time.Hour,
		"reconciliation.lookback":     24 * time.Hour,
		"events.enabled":              false,
		"events.channel_prefix":       "mpesa",
	}
}
