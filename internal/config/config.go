// Package config loads server configuration from defaults, an optional YAML
// file and CONTROLLER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/home-device-controller/backend/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. CONTROLLER_API_TOKEN.
const EnvPrefix = "CONTROLLER"

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	UserID  string        `mapstructure:"user_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type BulkConfig struct {
	// Concurrency caps parallel requests in a bulk command; 0 means unlimited.
	Concurrency int `mapstructure:"concurrency"`
}

type DeviceConfig struct {
	FallbackName string `mapstructure:"fallback_name"`
}

type MQTTConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
}

// Enabled reports whether events should be mirrored to a broker.
func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

// Config is the full server configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	DataDir    string         `mapstructure:"data_dir"`
	StaticDir  string         `mapstructure:"static_dir"`
	Log        logging.Config `mapstructure:"log"`
	API        APIConfig      `mapstructure:"api"`
	Poll       PollConfig     `mapstructure:"poll"`
	Bulk       BulkConfig     `mapstructure:"bulk"`
	Device     DeviceConfig   `mapstructure:"device"`
	MQTT       MQTTConfig     `mapstructure:"mqtt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8099")
	v.SetDefault("data_dir", "/data")
	v.SetDefault("static_dir", "./static")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.token", "")
	v.SetDefault("api.user_id", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("bulk.concurrency", 0)
	v.SetDefault("device.fallback_name", "Unnamed Device")
	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.topic_prefix", "home-controller")
	v.SetDefault("mqtt.client_id", "home-device-controller")
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("api.timeout must not be negative"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	if c.Bulk.Concurrency < 0 {
		errs = append(errs, errors.New("bulk.concurrency must not be negative"))
	}
	if c.Device.FallbackName == "" {
		errs = append(errs, errors.New("device.fallback_name is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
