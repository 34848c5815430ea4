package config

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/omnigate/omnigate/internal/channel"
)

type (
	Config struct {
		Gateway     GatewayConfig             `yaml:"gateway" json:"gateway"`
		Logging     LoggingConfig             `yaml:"logging" json:"logging"`
		Webhook     WebhookConfig             `yaml:"webhook" json:"webhook"`
		MetaWebhook MetaWebhookConfig         `yaml:"meta_webhook" json:"meta_webhook"`
		Channels    map[string]channel.Config `yaml:"channels" json:"channels"`
	}

	GatewayConfig struct {
		Bind           string `yaml:"bind" json:"bind"`
		RequestTimeout int    `yaml:"request_timeout" json:"request_timeout"` // seconds
	}

	LoggingConfig struct {
		Level      string `yaml:"level" json:"level"`   // debug, info, warn, error
		Format     string `yaml:"format" json:"format"` // json, text
		Output     string `yaml:"output" json:"output"` // stdout, file, both
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"` // days
	}

	// WebhookConfig points the event sink at an external consumer. A blank
	// URL disables the sink.
	WebhookConfig struct {
		URL        string `yaml:"url" json:"url"`
		TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
		QueueSize  int    `yaml:"queue_size" json:"queue_size"`
	}

	// MetaWebhookConfig holds the verify token Meta echoes back during
	// webhook subscription. Shared by every Messenger and Instagram channel.
	MetaWebhookConfig struct {
		VerifyToken string `yaml:"verify_token" json:"verify_token"`
	}
)

// Validate normalizes defaults and checks every channel entry. The map key
// is only a name (the gateway persists entries under the composite
// "type:accountId" registry key); a hand-written entry may omit account_id
// and inherit the key as its account id.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.RequestTimeout <= 0 {
		c.Gateway.RequestTimeout = 30
	}

	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = 10
	}
	if c.Webhook.QueueSize <= 0 {
		c.Webhook.QueueSize = 256
	}
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)

	normalized := make(map[string]channel.Config, len(c.Channels))
	for key, one := range c.Channels {
		name := strings.TrimSpace(key)
		if name == "" {
			return fmt.Errorf("channel key cannot be empty")
		}
		if one.AccountID == "" {
			one.AccountID = name
		}
		if err := one.Validate(); err != nil {
			return fmt.Errorf("channels[%s] validation failed: %w", name, err)
		}
		normalized[name] = one
	}
	c.Channels = normalized
	return nil
}

// UpdateByName replaces one named section of the config.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "webhook":
		typed, ok := value.(*WebhookConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'webhook' requires *WebhookConfig")
		}
		c.Webhook = *typed
	case "channels":
		typed, ok := value.(*map[string]channel.Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]channel.Config")
		}
		next := make(map[string]channel.Config, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

// Clone .
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}
