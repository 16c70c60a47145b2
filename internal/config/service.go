package config

import (
	"errors"
	"fmt"
	"time"
)

type ServiceConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`
}

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// MpesaConfig is passed explicitly to the gateway client and token cache.
type MpesaConfig struct {
	Environment    string `yaml:"environment" mapstructure:"environment"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ConsumerKey    string `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret" mapstructure:"consumer_secret"`

	ShortCode       string `yaml:"short_code" mapstructure:"short_code"`
	PassKey         string `yaml:"pass_key" mapstructure:"pass_key"`
	TransactionType string `yaml:"transaction_type" mapstructure:"transaction_type"`
	// PartyB defaults to ShortCode (till numbers differ from the store number).
	PartyB      string `yaml:"party_b" mapstructure:"party_b"`
	CallbackURL string `yaml:"callback_url" mapstructure:"callback_url"`

	InitiatorName      string `yaml:"initiator_name" mapstructure:"initiator_name"`
	InitiatorPassword  string `yaml:"initiator_password" mapstructure:"initiator_password"`
	SecurityCredential string `yaml:"security_credential" mapstructure:"security_credential"`
	CertificatePath    string `yaml:"certificate_path" mapstructure:"certificate_path"`
	ReversalResultURL  string `yaml:"reversal_result_url" mapstructure:"reversal_result_url"`
	ReversalTimeoutURL string `yaml:"reversal_timeout_url" mapstructure:"reversal_timeout_url"`

	QRMerchantName string `yaml:"qr_merchant_name" mapstructure:"qr_merchant_name"`

	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	TokenLifetime     time.Duration `yaml:"token_lifetime" mapstructure:"token_lifetime"`
	TokenSafetyMargin time.Duration `yaml:"token_safety_margin" mapstructure:"token_safety_margin"`
	TokenStore        string        `yaml:"token_store" mapstructure:"token_store"`
	TokenKey          string        `yaml:"token_key" mapstructure:"token_key"`
}

// GatewayURL returns the configured base URL, falling back to the environment default.
func (c *MpesaConfig) GatewayURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == EnvironmentProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// ReceivingParty returns PartyB for push payments.
func (c *MpesaConfig) ReceivingParty() string {
	if c.PartyB != "" {
		return c.PartyB
	}
	return c.ShortCode
}

func (c *MpesaConfig) Validate() error {
	var errs []error
	if c.Environment != EnvironmentSandbox && c.Environment != EnvironmentProduction {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		errs = append(errs, errors.New("consumer_key and consumer_secret are required"))
	}
	if c.ShortCode == "" || c.PassKey == "" {
		errs = append(errs, errors.New("short_code and pass_key are required"))
	}
	if c.TokenSafetyMargin >= c.TokenLifetime {
		errs = append(errs, errors.New("token_safety_margin must be shorter than token_lifetime"))
	}
	if c.TokenStore != TokenStoreMemory && c.TokenStore != TokenStoreRedis {
		errs = append(errs, fmt.Errorf("unknown token_store %q", c.TokenStore))
	}
	return errors.Join(errs...)
}

// PollerConfig drives the pending payment status poller.
type PollerConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// ReconciliationConfig drives the in-process periodic reconciliation.
type ReconciliationConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Lookback time.Duration `yaml:"lookback" mapstructure:"lookback"`
}

type EventsConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	ChannelPrefix string `yaml:"channel_prefix" mapstructure:"channel_prefix"`
}
