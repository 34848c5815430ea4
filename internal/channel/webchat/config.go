package webchat

import (
	"github.com/bytedance/gg/gconv"
)

type Config struct {
	// RateLimit caps inbound frames per second per connection; Burst is the
	// short-term allowance. Protects the fan-out path from a misbehaving
	// widget.
	RateLimit float64
	Burst     int
}

func (c *Config) Validate() error {
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	return nil
}

func ParseConfig(settings map[string]interface{}) (*Config, error) {
	cfg := &Config{}
	cfg.RateLimit = gconv.To[float64](settings["rate_limit"])
	cfg.Burst = gconv.To[int](settings["burst"])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
