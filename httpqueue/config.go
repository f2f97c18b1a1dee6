/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"fmt"
	"strings"

	"github.com/acronis/go-webkit/config"
)

const cfgDefaultKeyPrefix = "queueResponder"

const (
	cfgKeyHost           = "host"
	cfgKeyPort           = "port"
	cfgKeyTLS            = "tls"
	cfgKeyQueueSize      = "queue.size"
	cfgKeyRateLimitLimit = "rateLimit.limit"
	cfgKeyRateLimitBurst = "rateLimit.burst"
	cfgKeyRateLimitAlg   = "rateLimit.alg"
	cfgKeyPoolSize       = "pool.size"
	cfgKeyMetricsEnabled = "metrics.enabled"
)

// Rate limiting algorithms.
const (
	RateLimitAlgTokenBucket   = "token_bucket"
	RateLimitAlgLeakyBucket   = "leaky_bucket"
	RateLimitAlgSlidingWindow = "sliding_window"
)

// Default values.
const (
	DefaultHTTPSPort = 443
	DefaultHTTPPort  = 80

	DefaultRateLimitBurst = 1
)

// Config represents a set of configuration parameters for a queue responder.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Host is the target host. Required.
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port is the target port. Defaults to 443 with TLS and 80 without.
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// TLS enables https scheme for the target.
	TLS bool `mapstructure:"tls" yaml:"tls" json:"tls"`

	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue" json:"queue"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool" json:"pool"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// QueueConfig represents configuration options for the responder's queue.
type QueueConfig struct {
	// Size is the queue capacity. Required, must be positive.
	Size int `mapstructure:"size" yaml:"size" json:"size"`
}

// RateLimitConfig represents configuration options for pacing dispatches.
type RateLimitConfig struct {
	// Limit is the maximum number of dispatches per second. Required, must be positive.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allows temporary spikes in dispatch rate. Defaults to 1.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// Alg is the rate limiting algorithm: token_bucket (default), leaky_bucket or sliding_window.
	Alg string `mapstructure:"alg" yaml:"alg" json:"alg"`
}

// PoolConfig represents configuration options for the default transport pool.
type PoolConfig struct {
	// Size is the number of parallel connections to the target host.
	Size int `mapstructure:"size" yaml:"size" json:"size"`
}

// MetricsConfig represents configuration options for responder metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
// This prefix will be used by config.Loader.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the queue responder in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimitBurst, DefaultRateLimitBurst)
	dp.SetDefault(cfgKeyRateLimitAlg, RateLimitAlgTokenBucket)
	dp.SetDefault(cfgKeyPoolSize, DefaultTransportPoolSize)
}

var availableRateLimitAlgs = []string{RateLimitAlgTokenBucket, RateLimitAlgLeakyBucket, RateLimitAlgSlidingWindow}

// Set sets queue responder configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Host, err = dp.GetString(cfgKeyHost); err != nil {
		return err
	}
	if c.Host == "" {
		return dp.WrapKeyErr(cfgKeyHost, fmt.Errorf("cannot be empty"))
	}

	if c.TLS, err = dp.GetBool(cfgKeyTLS); err != nil {
		return err
	}

	if c.Port, err = dp.GetInt(cfgKeyPort); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return dp.WrapKeyErr(cfgKeyPort, fmt.Errorf("should be in range [0, 65535]"))
	}
	if c.Port == 0 {
		if c.TLS {
			c.Port = DefaultHTTPSPort
		} else {
			c.Port = DefaultHTTPPort
		}
	}

	if c.Queue.Size, err = dp.GetInt(cfgKeyQueueSize); err != nil {
		return err
	}
	if c.Queue.Size <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueSize, fmt.Errorf("should be positive"))
	}

	if err = c.setRateLimitConfig(dp); err != nil {
		return err
	}

	if c.Pool.Size, err = dp.GetInt(cfgKeyPoolSize); err != nil {
		return err
	}
	if c.Pool.Size <= 0 {
		return dp.WrapKeyErr(cfgKeyPoolSize, fmt.Errorf("should be positive"))
	}

	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}

	return nil
}

func (c *Config) setRateLimitConfig(dp config.DataProvider) error {
	var err error

	if c.RateLimit.Limit, err = dp.GetInt(cfgKeyRateLimitLimit); err != nil {
		return err
	}
	if c.RateLimit.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitLimit, fmt.Errorf("should be positive"))
	}

	if c.RateLimit.Burst, err = dp.GetInt(cfgKeyRateLimitBurst); err != nil {
		return err
	}
	if c.RateLimit.Burst <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitBurst, fmt.Errorf("should be positive"))
	}

	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyRateLimitAlg, availableRateLimitAlgs, true); err != nil {
		return err
	}
	c.RateLimit.Alg = strings.ToLower(alg)

	return nil
}

// Scheme returns the URL scheme for the configured target.
func (c *Config) Scheme() string {
	if c.TLS {
		return "https"
	}
	return "http"
}

// TargetAddr returns the host:port address of the configured target.
func (c *Config) TargetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
