package telegram

import (
	"fmt"
	"time"

	"github.com/bytedance/gg/gconv"

	"github.com/omnigate/omnigate/internal/channel"
)

type Config struct {
	BotToken    string // Telegram Bot Token, required
	PollTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("%w: telegram bot_token is required", channel.ErrInvalidConfig)
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Second
	}
	return nil
}

func ParseConfig(settings map[string]interface{}) (*Config, error) {
	cfg := &Config{}

	cfg.BotToken = gconv.To[string](settings["bot_token"])
	if cfg.BotToken == "" {
		// The REST body uses the camelCase field name.
		cfg.BotToken = gconv.To[string](settings["botToken"])
	}

	if pollTimeout := gconv.To[int](settings["poll_timeout"]); pollTimeout > 0 {
		cfg.PollTimeout = time.Duration(pollTimeout) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
