// Package config loads YAML configuration with environment overrides through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config gives read access to loaded settings.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetStringSlice(key string) []string
	GetStringMap(key string) map[string]interface{}
	IsSet(key string) bool
	GetAll() map[string]interface{}
	Unmarshal(out interface{}) error
	ConfigFileUsed() string
}

// Options controls where configuration is read from.
type Options struct {
	// File is an explicit config file path. When empty the loader looks for
	// {Name}.yaml under configs/{APP_ENV} and then configs/.
	File string
	// Name is the config file name without extension.
	Name string
	// EnvPrefix prefixes environment overrides, e.g. PAYMENT_MPESA_CONSUMER_KEY.
	EnvPrefix string
	// Defaults are applied before the file is read.
	Defaults map[string]interface{}
}

type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) GetString(key string) string                    { return c.v.GetString(key) }
func (c *viperConfig) GetInt(key string) int                          { return c.v.GetInt(key) }
func (c *viperConfig) GetBool(key string) bool                        { return c.v.GetBool(key) }
func (c *viperConfig) GetFloat64(key string) float64                  { return c.v.GetFloat64(key) }
func (c *viperConfig) GetStringSlice(key string) []string             { return c.v.GetStringSlice(key) }
func (c *viperConfig) GetStringMap(key string) map[string]interface{} { return c.v.GetStringMap(key) }
func (c *viperConfig) IsSet(key string) bool                          { return c.v.IsSet(key) }
func (c *viperConfig) GetAll() map[string]interface{}                 { return c.v.AllSettings() }
func (c *viperConfig) ConfigFileUsed() string                         { return c.v.ConfigFileUsed() }

// Unmarshal decodes all settings into out using mapstructure tags.
func (c *viperConfig) Unmarshal(out interface{}) error {
	return c.v.Unmarshal(out)
}

const configDir = "configs"

// Load reads the configuration file and binds environment overrides.
func Load(opts Options) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range opts.Defaults {
		v.SetDefault(key, value)
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(strings.ToUpper(opts.EnvPrefix))
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		absPath, err := filepath.Abs(opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		v.SetConfigFile(absPath)
	} else {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = "dev"
		}
		v.SetConfigName(opts.Name)
		v.AddConfigPath(filepath.Join(configDir, env))
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return &viperConfig{v: v}, nil
}
