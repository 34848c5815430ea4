package whatsapp

import (
	"time"

	"github.com/bytedance/gg/gconv"

	"github.com/omnigate/omnigate/internal/consts"
)

type Config struct {
	// SessionDir is the root under which this account's session database is
	// created. Defaults to the omnigate home sessions directory.
	SessionDir string

	// ReconnectBackoff is the fixed delay before the single automatic
	// reconnect attempt after an unexpected disconnect.
	ReconnectBackoff time.Duration

	// PrintQR renders pairing codes to the process log for operators running
	// without the CRM front end.
	PrintQR bool
}

func (c *Config) Validate() error {
	if c.SessionDir == "" {
		c.SessionDir = consts.DefaultSessionRoot()
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 5 * time.Second
	}
	return nil
}

func ParseConfig(settings map[string]interface{}) (*Config, error) {
	cfg := &Config{}
	cfg.SessionDir = gconv.To[string](settings["session_dir"])
	if backoff := gconv.To[int](settings["reconnect_backoff"]); backoff > 0 {
		cfg.ReconnectBackoff = time.Duration(backoff) * time.Second
	}
	cfg.PrintQR = gconv.To[bool](settings["print_qr"])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
